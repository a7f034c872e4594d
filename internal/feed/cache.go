package feed

import (
	"sync"
	"time"
)

// MemoryCache holds the most recently assembled feed per identifier so
// repeated filter or sort requests do not re-walk the network.
type MemoryCache struct {
	mu      sync.RWMutex
	feeds   map[string]*Result // DID -> last assembled feed
	maxAge  time.Duration
	maxSize int
}

// NewMemoryCache creates a cache keeping at most maxSize feeds, each
// valid for maxAge after assembly.
func NewMemoryCache(maxAge time.Duration, maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &MemoryCache{
		feeds:   make(map[string]*Result, maxSize),
		maxAge:  maxAge,
		maxSize: maxSize,
	}
}

// Put stores an assembled feed, evicting the stalest entry when full.
func (c *MemoryCache) Put(result *Result) {
	if result == nil || result.DID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.feeds[result.DID]; !exists && len(c.feeds) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.feeds[result.DID] = result
}

// Get returns the cached feed for a DID, or nil when absent or stale.
func (c *MemoryCache) Get(did string) *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.feeds[did]
	if !ok {
		return nil
	}
	if c.maxAge > 0 && time.Since(result.LoadedAt) > c.maxAge {
		return nil
	}
	return result
}

// Invalidate drops the cached feed for a DID, typically after a
// bookmark mutation.
func (c *MemoryCache) Invalidate(did string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.feeds, did)
}

// Count returns the number of cached feeds, stale entries included.
func (c *MemoryCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.feeds)
}

func (c *MemoryCache) evictOldestLocked() {
	var (
		oldestDID string
		oldestAt  time.Time
	)
	for did, result := range c.feeds {
		if oldestDID == "" || result.LoadedAt.Before(oldestAt) {
			oldestDID = did
			oldestAt = result.LoadedAt
		}
	}
	if oldestDID != "" {
		delete(c.feeds, oldestDID)
	}
}
