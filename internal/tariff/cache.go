package tariff

import (
	"sync"
	"time"

	"github.com/sells-group/tariffwatch/internal/model"
)

// Cache memoizes resolution results keyed by the canonical form of the
// code as originally queried, not by the prefix a strategy matched.
// Strategy outputs are a pure function of the input code and the slowly
// changing backing data, so concurrent first-time resolutions for the same
// code converge to equal values; the lock only guards map integrity.
//
// TTL 0 means entries never expire, which matches the historical behavior
// of serving whatever was first computed until process restart. A positive
// TTL bounds staleness: expired entries are re-resolved and overwritten.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rate     model.TariffRate
	storedAt time.Time
}

// NewCache creates a resolution cache with the given TTL (0 = no expiry).
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// WithNow sets the clock, for tests.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the cached record for a canonical code, if present and fresh.
func (c *Cache) Get(code string) (model.TariffRate, bool) {
	c.mu.RLock()
	e, ok := c.entries[code]
	c.mu.RUnlock()
	if !ok {
		return model.TariffRate{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		return model.TariffRate{}, false
	}
	return e.rate, true
}

// Set stores a record under a canonical code.
func (c *Cache) Set(code string, rate model.TariffRate) {
	c.mu.Lock()
	c.entries[code] = cacheEntry{rate: rate, storedAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of cached entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
