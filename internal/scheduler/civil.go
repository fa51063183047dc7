package scheduler

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format accepted by occupancy queries.
const DateLayout = "2006-01-02"

// Civil performs calendar arithmetic in the facility's fixed timezone.
type Civil struct {
	loc     *time.Location
	opening time.Duration
	closing time.Duration
}

// NewCivil builds a Civil clock. opening and closing are offsets from local
// midnight and must satisfy 0 <= opening < closing <= 24h.
func NewCivil(loc *time.Location, opening, closing time.Duration) (Civil, error) {
	if loc == nil {
		return Civil{}, fmt.Errorf("scheduler: location is required")
	}
	if opening < 0 || closing > 24*time.Hour || opening >= closing {
		return Civil{}, fmt.Errorf("scheduler: invalid operating hours %s-%s", opening, closing)
	}
	return Civil{loc: loc, opening: opening, closing: closing}, nil
}

// MustCivil is NewCivil for static configuration; it panics on invalid input.
func MustCivil(loc *time.Location, opening, closing time.Duration) Civil {
	c, err := NewCivil(loc, opening, closing)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the configured timezone.
func (c Civil) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Hours returns the opening and closing offsets from local midnight.
func (c Civil) Hours() (opening, closing time.Duration) {
	return c.opening, c.closing
}

// In converts t into the civil timezone.
func (c Civil) In(t time.Time) time.Time {
	return t.In(c.Location())
}

// DayStart returns local midnight of the civil day containing t.
func (c Civil) DayStart(t time.Time) time.Time {
	local := c.In(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
}

// DayBounds returns the [midnight, next midnight) window of the civil day containing t.
func (c Civil) DayBounds(t time.Time) Window {
	start := c.DayStart(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Opening returns the opening instant of the civil day containing t.
func (c Civil) Opening(t time.Time) time.Time {
	return c.atOffset(t, c.opening)
}

// Closing returns the closing instant of the civil day containing t.
func (c Civil) Closing(t time.Time) time.Time {
	return c.atOffset(t, c.closing)
}

// OperatingHours returns the [opening, closing) window of the civil day containing t.
func (c Civil) OperatingHours(t time.Time) Window {
	return Window{Start: c.Opening(t), End: c.Closing(t)}
}

// SameDay reports whether a and b fall on the same civil date.
func (c Civil) SameDay(a, b time.Time) bool {
	return c.DayStart(a).Equal(c.DayStart(b))
}

// ParseDate parses a YYYY-MM-DD date as local midnight in the civil timezone.
func (c Civil) ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, c.Location())
}

func (c Civil) atOffset(t time.Time, offset time.Duration) time.Time {
	start := c.DayStart(t)
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	return time.Date(start.Year(), start.Month(), start.Day(), hours, minutes, 0, 0, c.Location())
}

// ParseClock parses an "HH:MM" time of day into an offset from midnight.
// "24:00" is accepted as the end of the day.
func ParseClock(value string) (time.Duration, error) {
	if value == "24:00" {
		return 24 * time.Hour, nil
	}
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("scheduler: invalid time of day %q", value)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

// Window is a half-open [Start, End) interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.Before(w.End)
}

// Overlaps reports whether two windows share any instant. Touching endpoints
// (a.End == b.Start) do not overlap.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Clip restricts the window to bounds. The result may be invalid when the two
// windows do not overlap.
func (w Window) Clip(bounds Window) Window {
	clipped := w
	if clipped.Start.Before(bounds.Start) {
		clipped.Start = bounds.Start
	}
	if clipped.End.After(bounds.End) {
		clipped.End = bounds.End
	}
	return clipped
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// IsZero reports whether c is the unconfigured zero value.
func (c Civil) IsZero() bool {
	return c.loc == nil
}
