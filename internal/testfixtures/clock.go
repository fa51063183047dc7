package testfixtures

import (
	"sync"
	"time"
)

// Facility is the fixed timezone fixtures use for civil times.
var Facility = time.FixedZone("JST", 9*60*60)

var referenceTime = time.Date(2025, time.April, 1, 9, 0, 0, 0, Facility)

// ReferenceTime returns the canonical baseline instant: 09:00 facility time on a weekday,
// one hour after opening.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns hour:minute facility time on the reference date.
func At(hour, minute int) time.Time {
	return time.Date(referenceTime.Year(), referenceTime.Month(), referenceTime.Day(), hour, minute, 0, 0, Facility)
}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now as a function suitable for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// SetClock moves the clock to hour:minute on the reference date.
func (c *Clock) SetClock(hour, minute int) time.Time {
	t := At(hour, minute)
	c.Set(t)
	return t
}

// Advance moves the clock forward by d and returns the updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
