package catalog

import (
	"sync"
	"time"
)

// queryCache keeps recent search responses so retried detections on the same
// shelf do not hammer the catalog with identical queries.
type queryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	products []Product
	expires  time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *queryCache) get(query string) ([]Product, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, query)
		return nil, false
	}
	return entry.products, true
}

func (c *queryCache) put(query string, products []Product) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = cacheEntry{products: products, expires: c.now().Add(c.ttl)}
}
