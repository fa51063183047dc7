package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/facility-booking/internal/scheduler"
)

// RequestExtension asks staff to push the effective end of an ongoing reservation later. The
// extended end itself is only written on approval.
func (s *ReservationService) RequestExtension(ctx context.Context, principal Principal, id, reason string) (Reservation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Reservation{}, newValidationError("reason", "reason is required")
	}

	return s.transition(ctx, principal, id, "RequestExtension", EventExtensionRequested, func(now time.Time, r *Reservation) error {
		if !isOwner(principal, *r) {
			return ErrForbidden
		}
		if err := requireStatus(*r, StatusOngoing); err != nil {
			return err
		}
		switch r.ExtensionStatus {
		case ExtensionPending:
			return ErrInvalidTransition
		case ExtensionRejected:
			if !s.policy.AllowExtensionRetry {
				return ErrInvalidTransition
			}
		}
		if !now.Before(r.EffectiveEnd()) {
			return ErrInvalidTransition
		}

		limit, err := s.extensionCap(ctx, *r)
		if err != nil {
			return err
		}
		if !limit.After(r.EffectiveEnd()) {
			return ErrConflict
		}

		r.ExtensionRequested = true
		r.ExtensionStatus = ExtensionPending
		r.ExtensionReason = reason
		r.ExtensionCap = &limit
		return nil
	})
}

// PreviewExtension returns the latest end an extension of the reservation could reach right now.
// A result equal to the effective end means the room is taken immediately afterwards.
func (s *ReservationService) PreviewExtension(ctx context.Context, principal Principal, id string) (time.Time, error) {
	if s == nil {
		return time.Time{}, fmt.Errorf("ReservationService is nil")
	}
	reservation, err := s.load(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if !isOwnerOrStaff(principal, reservation) {
		return time.Time{}, ErrForbidden
	}
	return s.extensionCap(ctx, reservation)
}

// HandleExtension applies a staff decision to a pending extension. Approval recomputes the cap
// under the room lock and grants whatever room is left; with none left it fails with ErrConflict
// and nothing changes.
func (s *ReservationService) HandleExtension(ctx context.Context, principal Principal, id string, action ExtensionAction) (Reservation, error) {
	var kind EventKind
	switch action {
	case ExtensionApprove:
		kind = EventExtensionApproved
	case ExtensionReject:
		kind = EventExtensionRejected
	default:
		return Reservation{}, newValidationError("action", "action must be approve or reject")
	}

	return s.transition(ctx, principal, id, "HandleExtension", kind, func(now time.Time, r *Reservation) error {
		if !principal.IsStaff() {
			return ErrForbidden
		}
		if r.ExtensionStatus != ExtensionPending {
			return ErrInvalidTransition
		}

		if action == ExtensionReject {
			r.ExtensionStatus = ExtensionRejected
			return nil
		}

		if err := requireStatus(*r, StatusOngoing); err != nil {
			return err
		}
		limit, err := s.extensionCap(ctx, *r)
		if err != nil {
			return err
		}
		if !limit.After(r.EffectiveEnd()) {
			return ErrConflict
		}
		r.ExtendedEnd = &limit
		r.ExtensionCap = &limit
		r.ExtensionStatus = ExtensionApproved
		return nil
	})
}

// ClearExtension resets a rejected extension so the owner may ask again.
func (s *ReservationService) ClearExtension(ctx context.Context, principal Principal, id string) (Reservation, error) {
	return s.transition(ctx, principal, id, "ClearExtension", "", func(now time.Time, r *Reservation) error {
		if !principal.IsStaff() {
			return ErrForbidden
		}
		if r.ExtensionStatus != ExtensionRejected {
			return ErrInvalidTransition
		}
		r.ExtensionRequested = false
		r.ExtensionStatus = ExtensionNone
		r.ExtensionReason = ""
		r.ExtensionCap = nil
		return nil
	})
}

// extensionCap is the earliest of the next busy window of the room after the effective end, the
// closing time and the configured maximum extension.
func (s *ReservationService) extensionCap(ctx context.Context, reservation Reservation) (time.Time, error) {
	effectiveEnd := reservation.EffectiveEnd()

	limit := s.policy.Civil.Closing(reservation.Start)
	if s.policy.MaxExtension > 0 {
		if byMax := effectiveEnd.Add(s.policy.MaxExtension); byMax.Before(limit) {
			limit = byMax
		}
	}

	windows, err := s.occupancy(ctx, reservation.Floor, reservation.Room, reservation.Start, reservation.ID)
	if err != nil {
		return time.Time{}, err
	}
	if next, ok := scheduler.NextBusy(windows, reservation.Floor, reservation.Room, effectiveEnd); ok && next.Start.Before(limit) {
		limit = next.Start
	}
	if limit.Before(effectiveEnd) {
		limit = effectiveEnd
	}
	return limit, nil
}
