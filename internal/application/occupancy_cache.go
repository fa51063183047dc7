package application

import (
	"sync"
	"time"
)

// occupancyCache keeps recently computed floor occupancy for GetOccupancy. Conflict checks and
// extension caps never read it. Every local write clears it; other instances rely on the TTL.
type occupancyCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]occupancyCacheEntry
	// generation counts invalidations. A read computed under an older generation is not stored.
	generation uint64
}

type occupancyCacheEntry struct {
	windows   []OccupancyWindow
	expiresAt time.Time
}

// newOccupancyCache returns nil when ttl is not positive; a nil cache never hits.
func newOccupancyCache(ttl time.Duration, maxEntries int, now func() time.Time) *occupancyCache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &occupancyCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]occupancyCacheEntry),
	}
}

func occupancyCacheKey(floorKey string, day time.Time) string {
	return floorKey + "|" + day.UTC().Format(time.RFC3339)
}

func (c *occupancyCache) Get(key string) ([]OccupancyWindow, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneOccupancy(entry.windows), true
}

// Generation returns the current invalidation count. Capture it before reading the repository
// and pass it to Store.
func (c *occupancyCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Store saves windows read under generation. It drops them when a write invalidated the cache
// after the read began.
func (c *occupancyCache) Store(key string, generation uint64, windows []OccupancyWindow) {
	if c == nil {
		return
	}
	cloned := cloneOccupancy(windows)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}
	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = occupancyCacheEntry{windows: cloned, expiresAt: expiry}
}

func (c *occupancyCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]occupancyCacheEntry)
	c.generation++
	c.mu.Unlock()
}

func (c *occupancyCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *occupancyCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneOccupancy(windows []OccupancyWindow) []OccupancyWindow {
	if windows == nil {
		return nil
	}
	out := make([]OccupancyWindow, len(windows))
	for i, w := range windows {
		w.ReservationIDs = append([]string(nil), w.ReservationIDs...)
		out[i] = w
	}
	return out
}
