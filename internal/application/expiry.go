package application

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errNothingDue = errors.New("application: reservation no longer due")

// ExpireDue completes ongoing reservations whose effective end has passed and expires pending or
// approved reservations that were never started within the grace period. Every candidate is
// re-checked under its room lock, so a reservation is never transitioned twice. Per-item failures
// are counted and left for the next sweep.
func (s *ReservationService) ExpireDue(ctx context.Context) (result SweepResult, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ExpireDue")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "expiry sweep failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if result.Completed+result.Expired+result.Failed > 0 {
			logger.With(
				"completed", result.Completed,
				"expired", result.Expired,
				"failed", result.Failed,
			).InfoContext(ctx, "expiry sweep finished")
		}
	}()

	if s.reservations == nil {
		return
	}

	now := s.now()
	ongoing, err := s.reservations.ListReservations(ctx, ReservationFilter{
		Statuses:       []Status{StatusOngoing},
		EffectiveEndBy: &now,
	})
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}

	cutoff := now.Add(-s.policy.StartGrace)
	unstarted, err := s.reservations.ListReservations(ctx, ReservationFilter{
		Statuses:     []Status{StatusPending, StatusApproved},
		StartsBefore: &cutoff,
	})
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}

	for _, candidate := range append(ongoing, unstarted...) {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}

		updated, expireErr := s.applyLocked(ctx, candidate.ID, s.expireMutation)
		switch {
		case expireErr == nil:
		case errors.Is(expireErr, errNothingDue), errors.Is(expireErr, ErrNotFound), errors.Is(expireErr, ErrInvalidTransition):
			continue
		default:
			result.Failed++
			logger.WarnContext(ctx, "failed to expire reservation",
				"reservation_id", candidate.ID,
				"error", expireErr,
				"error_kind", ErrorKind(expireErr),
			)
			continue
		}

		switch updated.Status {
		case StatusCompleted:
			result.Completed++
			s.publish(ctx, logger, newLifecycleEvent(EventReservationCompleted, Principal{}, updated))
		case StatusExpired:
			result.Expired++
			s.publish(ctx, logger, newLifecycleEvent(EventReservationExpired, Principal{}, updated))
		}
	}
	return
}

func (s *ReservationService) expireMutation(now time.Time, r *Reservation) error {
	switch r.Status {
	case StatusOngoing:
		end := r.EffectiveEnd()
		if now.Before(end) {
			return errNothingDue
		}
		r.Status = StatusCompleted
		r.EndedAt = &end
		return nil
	case StatusPending, StatusApproved:
		if r.StartedAt != nil || !now.After(r.Start.Add(s.policy.StartGrace)) {
			return errNothingDue
		}
		r.Status = StatusExpired
		return nil
	}
	return errNothingDue
}
