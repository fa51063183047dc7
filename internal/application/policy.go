package application

import (
	"time"

	"github.com/example/facility-booking/internal/scheduler"
)

// Policy holds the facility rules the reservation service enforces.
type Policy struct {
	Civil scheduler.Civil
	// EarlyStart is how long before its start an approved reservation may be started.
	EarlyStart time.Duration
	// StartGrace is how long after its start an unstarted reservation survives before expiring.
	StartGrace time.Duration
	// VisibilityWindow hides terminal reservations from lists once they are older than this.
	VisibilityWindow time.Duration
	MaxGroupSize     int
	// MaxExtension caps a single extension; zero means until closing time.
	MaxExtension        time.Duration
	AllowExtensionRetry bool
	// OccupancyCacheTTL enables a short-lived cache for occupancy queries; zero disables it.
	OccupancyCacheTTL time.Duration
}

// DefaultPolicy returns the rules used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Civil:            scheduler.MustCivil(time.FixedZone("JST", 9*60*60), 8*time.Hour, 17*time.Hour),
		EarlyStart:       15 * time.Minute,
		StartGrace:       15 * time.Minute,
		VisibilityWindow: 24 * time.Hour,
		MaxGroupSize:     10,
	}
}

func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.Civil.IsZero() {
		p.Civil = defaults.Civil
	}
	if p.EarlyStart <= 0 {
		p.EarlyStart = defaults.EarlyStart
	}
	if p.StartGrace <= 0 {
		p.StartGrace = defaults.StartGrace
	}
	if p.VisibilityWindow <= 0 {
		p.VisibilityWindow = defaults.VisibilityWindow
	}
	if p.MaxGroupSize <= 0 {
		p.MaxGroupSize = defaults.MaxGroupSize
	}
	if p.MaxExtension < 0 {
		p.MaxExtension = 0
	}
	if p.OccupancyCacheTTL < 0 {
		p.OccupancyCacheTTL = 0
	}
	return p
}

// visible applies the list visibility rule: terminal reservations disappear once they are
// older than the visibility window. Nothing is deleted.
func (p Policy) visible(reservation Reservation, now time.Time) bool {
	if !reservation.Status.Terminal() {
		return true
	}
	return now.Sub(reservation.CreatedAt) <= p.VisibilityWindow
}
