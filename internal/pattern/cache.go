package pattern

import (
	"sync"
)

// Cache is a read-mostly, append-only map of compiled patterns keyed by
// source string. It is explicitly owned and injectable so independently
// configured engines (tests, multi-tenant hosts) cannot interfere with one
// another. A race that compiles an equivalent pattern twice is harmless.
type Cache struct {
	mu       sync.RWMutex
	compiled map[string]*Compiled
	metrics  *cacheMetrics
}

// CacheOption is a functional option for configuring the cache.
type CacheOption func(*Cache)

// WithMetrics registers cache hit/miss/size metrics on the given registerer.
func WithMetrics(m *cacheMetrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates a new pattern cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		compiled: make(map[string]*Compiled),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the compiled form of source, compiling and caching it on
// first use. Repeated use of an identical pattern does not re-pay
// compilation cost.
func (c *Cache) Compile(source string) (*Compiled, error) {
	c.mu.RLock()
	compiled, ok := c.compiled[source]
	c.mu.RUnlock()
	if ok {
		c.metrics.hit()
		return compiled, nil
	}

	c.metrics.miss()

	// Compile outside the lock; compilation is the expensive part.
	compiled, err := Compile(source)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have compiled the same source meanwhile;
	// either result is equivalent.
	if existing, ok := c.compiled[source]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.compiled[source] = compiled
	c.metrics.size(len(c.compiled))
	c.mu.Unlock()

	return compiled, nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}
