package environment

import "sync"

// Cache holds the environment detection result for the lifetime of the
// process. Detection is lazy and runs at most once until Invalidate is
// called. The cache is an explicit object handed to the evaluator so tests
// can construct a fresh one and pre-seed it.
type Cache struct {
	mu       sync.Mutex
	resolved bool
	envType  string
	details  Details
}

// NewCache returns an empty, unresolved cache
func NewCache() *Cache {
	return &Cache{}
}

// Resolve returns the cached detection result, running detect on the
// first call only
func (c *Cache) Resolve(detect func() (string, Details)) (string, Details) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.resolved {
		c.envType, c.details = detect()
		c.resolved = true
	}
	return c.envType, c.details
}

// Seed pre-populates the cache, bypassing detection
func (c *Cache) Seed(envType string, details Details) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.envType = envType
	c.details = details
	c.resolved = true
}

// Invalidate discards the cached result so the next Resolve re-detects
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolved = false
	c.envType = ""
	c.details = Details{}
}
