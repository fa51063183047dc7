package scheduler

import (
	"testing"
	"time"
)

func TestBuildOccupancy(t *testing.T) {
	t.Parallel()

	day := Window{Start: at(0, 0), End: at(0, 0).AddDate(0, 0, 1)}

	bookings := []Booking{
		{ID: "late", Floor: "2", Room: "101", Window: Window{Start: at(16, 0), End: at(17, 0)}, Status: BookingPending},
		{ID: "early", Floor: "2", Room: "101", Window: Window{Start: at(9, 0), End: at(10, 0)}, Status: BookingApproved},
		{ID: "touch", Floor: "2", Room: "101", Window: Window{Start: at(10, 0), End: at(11, 0)}, Status: BookingOngoing},
		{ID: "overlap", Floor: "2", Room: "101", Window: Window{Start: at(10, 30), End: at(12, 0)}, Status: BookingApproved},
		{ID: "gone", Floor: "2", Room: "101", Window: Window{Start: at(13, 0), End: at(14, 0)}, Status: BookingCancelled},
		{ID: "done", Floor: "2", Room: "101", Window: Window{Start: at(14, 0), End: at(15, 0)}, Status: BookingCompleted},
		{ID: "other", Floor: "1", Room: "001", Window: Window{Start: at(9, 0), End: at(9, 30)}, Status: BookingPending},
	}

	windows := BuildOccupancy(bookings, day)

	if len(windows) != 4 {
		t.Fatalf("expected 4 windows, got %d: %+v", len(windows), windows)
	}

	if windows[0].Floor != "1" {
		t.Fatalf("expected floor 1 first, got %+v", windows[0])
	}

	room := windows[1:]
	if !room[0].Start.Equal(at(9, 0)) || !room[0].End.Equal(at(10, 0)) {
		t.Fatalf("unexpected first window %+v", room[0])
	}
	if !room[1].Start.Equal(at(10, 0)) || !room[1].End.Equal(at(12, 0)) {
		t.Fatalf("expected merged 10:00-12:00 window, got %+v", room[1])
	}
	if len(room[1].BookingIDs) != 2 {
		t.Fatalf("expected merged window to reference two bookings, got %v", room[1].BookingIDs)
	}
	if !room[2].Start.Equal(at(16, 0)) {
		t.Fatalf("unexpected last window %+v", room[2])
	}

	for i := 1; i < len(room); i++ {
		if room[i].Start.Before(room[i-1].End) {
			t.Fatalf("windows overlap: %+v and %+v", room[i-1], room[i])
		}
	}
}

func TestBuildOccupancyClipsToDay(t *testing.T) {
	t.Parallel()

	day := Window{Start: at(0, 0), End: at(0, 0).AddDate(0, 0, 1)}
	bookings := []Booking{
		{ID: "overnight", Floor: "2", Room: "101", Window: Window{Start: at(0, 0).Add(-2 * time.Hour), End: at(1, 0)}, Status: BookingApproved},
		{ID: "yesterday", Floor: "2", Room: "101", Window: Window{Start: at(0, 0).Add(-5 * time.Hour), End: at(0, 0).Add(-4 * time.Hour)}, Status: BookingApproved},
	}

	windows := BuildOccupancy(bookings, day)
	if len(windows) != 1 {
		t.Fatalf("expected single window, got %+v", windows)
	}
	if !windows[0].Start.Equal(day.Start) {
		t.Fatalf("expected window clipped to midnight, got %v", windows[0].Start)
	}
}

func TestNextBusy(t *testing.T) {
	t.Parallel()

	windows := []OccupancyWindow{
		{Floor: "2", Room: "101", Start: at(9, 0), End: at(10, 0)},
		{Floor: "2", Room: "101", Start: at(15, 0), End: at(16, 0)},
		{Floor: "2", Room: "102", Start: at(15, 30), End: at(16, 0)},
	}

	t.Run("finds next window strictly after", func(t *testing.T) {
		t.Parallel()
		next, ok := NextBusy(windows, "2", "101", at(15, 0))
		if !ok || !next.Start.Equal(at(15, 0)) {
			t.Fatalf("expected 15:00 window, got %+v ok=%v", next, ok)
		}
	})

	t.Run("ignores windows already ended", func(t *testing.T) {
		t.Parallel()
		if _, ok := NextBusy(windows, "2", "101", at(16, 0)); ok {
			t.Fatalf("expected no window after 16:00")
		}
	})

	t.Run("scopes to room", func(t *testing.T) {
		t.Parallel()
		next, ok := NextBusy(windows, "2", "102", at(10, 0))
		if !ok || next.Room != "102" {
			t.Fatalf("expected room 102 window, got %+v", next)
		}
	})
}

func TestWindowOverlaps(t *testing.T) {
	t.Parallel()

	a := Window{Start: at(14, 0), End: at(15, 0)}
	b := Window{Start: at(15, 0), End: at(16, 0)}
	c := Window{Start: at(14, 59), End: at(15, 30)}

	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatalf("touching windows must not overlap")
	}
	if !a.Overlaps(c) || !c.Overlaps(b) {
		t.Fatalf("expected overlapping windows")
	}
}

func TestCivil(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("JST", 9*60*60)
	civil := MustCivil(loc, 8*time.Hour, 17*time.Hour)

	instant := time.Date(2024, time.March, 14, 20, 0, 0, 0, time.UTC) // 05:00 JST on the 15th
	start := civil.DayStart(instant)
	if start.Day() != 15 || start.Hour() != 0 {
		t.Fatalf("expected civil midnight of the 15th, got %v", start)
	}
	if got := civil.Closing(instant); got.Hour() != 17 || got.Day() != 15 {
		t.Fatalf("unexpected closing %v", got)
	}
	if !civil.SameDay(start, civil.Closing(instant)) {
		t.Fatalf("expected closing on same civil day")
	}

	parsed, err := civil.ParseDate("2024-03-15")
	if err != nil || !parsed.Equal(start) {
		t.Fatalf("ParseDate returned %v, %v", parsed, err)
	}

	if _, err := NewCivil(loc, 17*time.Hour, 8*time.Hour); err == nil {
		t.Fatalf("expected inverted hours to be rejected")
	}

	offset, err := ParseClock("17:30")
	if err != nil || offset != 17*time.Hour+30*time.Minute {
		t.Fatalf("ParseClock returned %v, %v", offset, err)
	}
}
