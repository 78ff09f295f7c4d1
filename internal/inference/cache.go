package inference

import (
	"sync"
	"time"
)

type cacheEntry struct {
	model    *Model
	loadedAt time.Time
}

// modelCache keeps parsed model artifacts in memory, keyed by artifact URI.
// Entries expire after the TTL so a republished artifact is picked up
// without a restart, and the size bound keeps memory flat when many
// artifact versions rotate through.
type modelCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func newModelCache(max int, ttl time.Duration) *modelCache {
	if max <= 0 {
		max = 1
	}
	return &modelCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

func (c *modelCache) get(uri string) (*Model, bool) {
	c.mu.RLock()
	entry, ok := c.entries[uri]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.loadedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, uri)
		c.mu.Unlock()
		return nil, false
	}
	return entry.model, true
}

func (c *modelCache) put(uri string, m *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[uri]; !ok && len(c.entries) >= c.max {
		// Evict the oldest entry to stay within the bound.
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.loadedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.loadedAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[uri] = cacheEntry{model: m, loadedAt: c.now()}
}

// invalidate drops a cached artifact, forcing a reload on next use.
func (c *modelCache) invalidate(uri string) {
	c.mu.Lock()
	delete(c.entries, uri)
	c.mu.Unlock()
}
