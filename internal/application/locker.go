package application

import (
	"context"
	"sync"
)

// Locker serialises work on a key. The returned unlock function is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RoomLockKey is the lock key shared by every reservation of a room.
func RoomLockKey(floor, room string) string {
	return "room:" + floor + "/" + room
}

// KeyedMutex is an in-process Locker holding one mutex per key.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*keyedSlot
}

type keyedSlot struct {
	held chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*keyedSlot)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	if m.slots == nil {
		m.slots = make(map[string]*keyedSlot)
	}
	slot, ok := m.slots[key]
	if !ok {
		slot = &keyedSlot{held: make(chan struct{}, 1)}
		m.slots[key] = slot
	}
	slot.refs++
	m.mu.Unlock()

	select {
	case slot.held <- struct{}{}:
	case <-ctx.Done():
		m.release(key, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.held
			m.release(key, slot)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, slot *keyedSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(m.slots, key)
	}
}
