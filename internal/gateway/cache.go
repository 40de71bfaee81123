package gateway

import (
	"sync"
	"time"
)

// ttlCache is a minimal expiring key/value cache. Expired entries are
// dropped on read; there is no background sweeper because the working set
// (tokens seen in the last TTL window) stays small.
type ttlCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[V]

	now func() time.Time
}

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	return &ttlCache[V]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[V]),
		now:     time.Now,
	}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

func (c *ttlCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
