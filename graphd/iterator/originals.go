package iterator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// OriginalCache maps the SET text of frozen iterators to the live original
// instances, so that thawing the same SET clones the original and shares
// its caches instead of rebuilding them.
//
// One cache outlives a request and is shared by every Env built on it,
// and those Envs may serve concurrent requests, so the cache is locked.
// An Env and the iterators created with it stay on one goroutine.
type OriginalCache struct {
	cache map[uint64]*cachedOriginal
	mu    sync.RWMutex

	// Statistics
	hits   int64
	misses int64

	// Configuration
	maxSize int
	ttl     time.Duration
}

type cachedOriginal struct {
	set       string
	it        *Iterator
	timestamp time.Time
}

// NewOriginalCache creates a new original-instance cache
func NewOriginalCache(maxSize int, ttl time.Duration) *OriginalCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &OriginalCache{
		cache:   make(map[uint64]*cachedOriginal),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the live original frozen with this SET, if any
func (c *OriginalCache) Get(set string) (*Iterator, bool) {
	if c == nil {
		return nil, false
	}

	key := xxhash.Sum64String(set)

	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.cache[key]
	if !ok || cached.set != set || cached.it.finished {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if time.Since(cached.timestamp) > c.ttl {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return cached.it, true
}

// Remember records it as the original for set
func (c *OriginalCache) Remember(set string, it *Iterator) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= c.maxSize {
		c.evictExpired()
		if len(c.cache) >= c.maxSize {
			c.evictOldest()
		}
	}

	c.cache[xxhash.Sum64String(set)] = &cachedOriginal{
		set:       set,
		it:        it,
		timestamp: time.Now(),
	}
}

// Forget drops every entry pointing at it
func (c *OriginalCache) Forget(it *Iterator) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, cached := range c.cache {
		if cached.it == it {
			delete(c.cache, key)
		}
	}
}

// Clear removes all entries
func (c *OriginalCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[uint64]*cachedOriginal)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Stats returns cache statistics
func (c *OriginalCache) Stats() (hits, misses int64, size int) {
	if c == nil {
		return 0, 0, 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), len(c.cache)
}

// evictExpired removes expired and finished entries
func (c *OriginalCache) evictExpired() {
	now := time.Now()
	for key, cached := range c.cache {
		if now.Sub(cached.timestamp) > c.ttl || cached.it.finished {
			delete(c.cache, key)
		}
	}
}

// evictOldest removes the oldest entry from the cache
func (c *OriginalCache) evictOldest() {
	var oldestKey uint64
	var oldestTime time.Time
	found := false

	for key, cached := range c.cache {
		if !found || cached.timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.timestamp
			found = true
		}
	}

	if found {
		delete(c.cache, oldestKey)
	}
}
