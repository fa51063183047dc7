// Package worker runs the periodic background jobs of the booking service.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/facility-booking/internal/application"
)

// ExpiryLeaseKey is the Locker key that keeps concurrent instances from sweeping together.
const ExpiryLeaseKey = "sweep:expiry"

// Sweeper completes and expires overdue reservations.
type Sweeper interface {
	ExpireDue(ctx context.Context) (application.SweepResult, error)
}

// ExpiryWorker calls the sweeper on a fixed interval while holding the sweep lease.
type ExpiryWorker struct {
	sweeper   Sweeper
	locker    application.Locker
	interval  time.Duration
	leaseWait time.Duration
	logger    *slog.Logger
}

// ExpiryWorkerOption customises an ExpiryWorker.
type ExpiryWorkerOption func(*ExpiryWorker)

// WithLeaseWait bounds how long a tick waits for another instance's sweep to finish before
// skipping.
func WithLeaseWait(wait time.Duration) ExpiryWorkerOption {
	return func(w *ExpiryWorker) {
		if wait > 0 {
			w.leaseWait = wait
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) ExpiryWorkerOption {
	return func(w *ExpiryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewExpiryWorker builds a worker. A nil locker sweeps without a lease.
func NewExpiryWorker(sweeper Sweeper, locker application.Locker, interval time.Duration, opts ...ExpiryWorkerOption) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	w := &ExpiryWorker{
		sweeper:   sweeper,
		locker:    locker,
		interval:  interval,
		leaseWait: 100 * time.Millisecond,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker", "expiry")
	return w
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "expiry worker started", "interval", w.interval)
	for {
		if _, _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.InfoContext(context.Background(), "expiry worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs one sweep. ran is false when another holder kept the lease for the whole wait.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (result application.SweepResult, ran bool, err error) {
	if w.locker != nil {
		leaseCtx, cancel := context.WithTimeout(ctx, w.leaseWait)
		unlock, lockErr := w.locker.Lock(leaseCtx, ExpiryLeaseKey)
		cancel()
		if lockErr != nil {
			if errors.Is(lockErr, context.DeadlineExceeded) && ctx.Err() == nil {
				w.logger.DebugContext(ctx, "expiry sweep skipped; lease held elsewhere")
				return application.SweepResult{}, false, nil
			}
			return application.SweepResult{}, false, lockErr
		}
		defer unlock()
	}

	start := time.Now()
	result, err = w.sweeper.ExpireDue(ctx)
	if err != nil {
		return result, true, err
	}
	if result.Completed > 0 || result.Expired > 0 || result.Failed > 0 {
		w.logger.InfoContext(ctx, "expiry sweep finished",
			"completed", result.Completed,
			"expired", result.Expired,
			"failed", result.Failed,
			"duration", time.Since(start),
		)
	}
	return result, true, nil
}
