package data

import (
	"sync"
	"time"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

type cacheEntry struct {
	bars     []types.PriceBar
	cachedAt time.Time
}

// BarCache is a TTL cache of bar sequences, safe for concurrent use.
type BarCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewBarCache creates a cache whose entries expire after ttl. A zero ttl
// disables caching.
func NewBarCache(ttl time.Duration) *BarCache {
	return &BarCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached bars for key if they are younger than the TTL.
func (c *BarCache) Get(key string) ([]types.PriceBar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.cachedAt) >= c.ttl {
		return nil, false
	}
	return e.bars, true
}

// Set stores bars under key
func (c *BarCache) Set(key string, bars []types.PriceBar) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{bars: bars, cachedAt: c.now()}
}

// Clear removes every entry
func (c *BarCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, expired ones included
func (c *BarCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
