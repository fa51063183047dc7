package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexSerialisesPerKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, RoomLockKey("3", "301"))
			if err != nil {
				t.Errorf("Lock returned error: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
	if len(m.slots) != 0 {
		t.Fatalf("expected idle keys to be released, got %d", len(m.slots))
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewKeyedMutex()

	unlockA, err := m.Lock(ctx, RoomLockKey("3", "301"))
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	defer unlockA()

	unlockB, err := m.Lock(ctx, RoomLockKey("3", "302"))
	if err != nil {
		t.Fatalf("a different room must not block: %v", err)
	}
	unlockB()
	unlockB()
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	t.Parallel()

	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "room:3/301")
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "room:3/301"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	unlock()
	again, err := m.Lock(context.Background(), "room:3/301")
	if err != nil {
		t.Fatalf("Lock after release returned error: %v", err)
	}
	again()
}
