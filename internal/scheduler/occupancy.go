package scheduler

import (
	"sort"
	"time"
)

// BookingStatus mirrors the reservation status strings relevant to occupancy.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingApproved  BookingStatus = "approved"
	BookingOngoing   BookingStatus = "ongoing"
	BookingRejected  BookingStatus = "rejected"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingExpired   BookingStatus = "expired"
)

// Occupies reports whether a booking in this status makes its room busy.
func (s BookingStatus) Occupies() bool {
	switch s {
	case BookingPending, BookingApproved, BookingOngoing:
		return true
	}
	return false
}

// Booking is the projection of a reservation the calculator works on. Window
// must already be the effective window (extended end applied).
type Booking struct {
	ID     string
	Floor  string
	Room   string
	Window Window
	Status BookingStatus
}

// OccupancyWindow is a derived busy interval for a room.
type OccupancyWindow struct {
	Floor string
	Room  string
	Start time.Time
	End   time.Time
	// BookingIDs lists the reservations merged into this window.
	BookingIDs []string
}

// Window returns the interval covered by the occupancy window.
func (o OccupancyWindow) Window() Window {
	return Window{Start: o.Start, End: o.End}
}

type roomKey struct {
	floor string
	room  string
}

// BuildOccupancy merges the occupying bookings that intersect day into
// ordered, non-overlapping windows per room. Windows are clipped to day;
// touching windows are kept separate.
func BuildOccupancy(bookings []Booking, day Window) []OccupancyWindow {
	byRoom := make(map[roomKey][]Booking)
	for _, booking := range bookings {
		if !booking.Status.Occupies() || !booking.Window.Valid() {
			continue
		}
		clipped := booking.Window.Clip(day)
		if !clipped.Valid() {
			continue
		}
		booking.Window = clipped
		key := roomKey{floor: booking.Floor, room: booking.Room}
		byRoom[key] = append(byRoom[key], booking)
	}

	keys := make([]roomKey, 0, len(byRoom))
	for key := range byRoom {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].floor == keys[j].floor {
			return keys[i].room < keys[j].room
		}
		return keys[i].floor < keys[j].floor
	})

	result := make([]OccupancyWindow, 0, len(bookings))
	for _, key := range keys {
		result = append(result, mergeRoom(key, byRoom[key])...)
	}
	return result
}

func mergeRoom(key roomKey, bookings []Booking) []OccupancyWindow {
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].Window.Start.Equal(bookings[j].Window.Start) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].Window.Start.Before(bookings[j].Window.Start)
	})

	merged := make([]OccupancyWindow, 0, len(bookings))
	for _, booking := range bookings {
		if n := len(merged); n > 0 && booking.Window.Start.Before(merged[n-1].End) {
			last := &merged[n-1]
			if booking.Window.End.After(last.End) {
				last.End = booking.Window.End
			}
			last.BookingIDs = append(last.BookingIDs, booking.ID)
			continue
		}
		merged = append(merged, OccupancyWindow{
			Floor:      key.floor,
			Room:       key.room,
			Start:      booking.Window.Start,
			End:        booking.Window.End,
			BookingIDs: []string{booking.ID},
		})
	}
	return merged
}

// NextBusy returns the first occupancy window of the room that ends after the
// given instant. A returned window whose Start is not after `after` means the
// room is already busy at that instant.
func NextBusy(windows []OccupancyWindow, floor, room string, after time.Time) (OccupancyWindow, bool) {
	var (
		best  OccupancyWindow
		found bool
	)
	for _, window := range windows {
		if window.Floor != floor || window.Room != room {
			continue
		}
		if !window.End.After(after) {
			continue
		}
		if !found || window.Start.Before(best.Start) {
			best = window
			found = true
		}
	}
	return best, found
}

// FilterFloor keeps the windows of a single floor. An empty floor keeps all.
func FilterFloor(windows []OccupancyWindow, floor string) []OccupancyWindow {
	if floor == "" {
		return windows
	}
	out := make([]OccupancyWindow, 0, len(windows))
	for _, window := range windows {
		if window.Floor == floor {
			out = append(out, window)
		}
	}
	return out
}
