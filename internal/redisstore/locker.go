package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/facility-booking/internal/application"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 25 * time.Millisecond
	lockKeyPrefix    = "booking:lock:"
)

// releaseScript deletes the lock only while it still holds the caller's token, so an expired
// lock re-acquired by another instance is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a distributed application.Locker built on SET NX PX.
type Locker struct {
	client Client
	ttl    time.Duration
	retry  time.Duration
	token  func() string
	logger *slog.Logger
}

// LockerOption customises a Locker.
type LockerOption func(*Locker)

// WithLockTTL bounds how long a crashed holder can block a key.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets the polling interval while waiting for a held key.
func WithRetryInterval(interval time.Duration) LockerOption {
	return func(l *Locker) {
		if interval > 0 {
			l.retry = interval
		}
	}
}

// WithLockLogger sets the logger used to report failed releases.
func WithLockLogger(logger *slog.Logger) LockerOption {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocker returns a Locker using client.
func NewLocker(client Client, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		ttl:    defaultLockTTL,
		retry:  defaultLockRetry,
		token:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := l.token()

	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: acquire %s: %w", key, err)
		}
		if acquired {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

var _ application.Locker = (*Locker)(nil)
