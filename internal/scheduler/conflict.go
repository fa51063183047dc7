package scheduler

// Conflict details an occupying booking that overlaps a candidate window.
type Conflict struct {
	WithBookingID string
	Floor         string
	Room          string
	Window        Window
}

// DetectConflicts identifies occupying bookings in the candidate's room whose
// windows overlap the candidate. The candidate itself (same ID) is ignored.
func DetectConflicts(existing []Booking, candidate Booking) []Conflict {
	if !candidate.Window.Valid() {
		return nil
	}

	var conflicts []Conflict
	for _, booking := range existing {
		if booking.ID == candidate.ID && candidate.ID != "" {
			continue
		}
		if booking.Floor != candidate.Floor || booking.Room != candidate.Room {
			continue
		}
		if !booking.Status.Occupies() {
			continue
		}
		if !booking.Window.Overlaps(candidate.Window) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithBookingID: booking.ID,
			Floor:         booking.Floor,
			Room:          booking.Room,
			Window:        booking.Window,
		})
	}
	return conflicts
}
