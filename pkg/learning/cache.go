package learning

import (
	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

// DefaultCacheSize is the number of personalities the default cache holds.
const DefaultCacheSize = 10000

// PersonalityCache holds the current personality per agent.
//
// Implementations must be safe for concurrent use. The engine never mutates a
// personality it got from or gave to the cache.
type PersonalityCache interface {
	Get(agentID string) (*Personality, bool)
	Set(agentID string, p *Personality)
}

// RistrettoCache is a PersonalityCache on a ristretto cache.
type RistrettoCache struct {
	cache *ristretto.Cache
}

// NewRistrettoCache creates a cache holding up to maxEntries personalities.
// Zero or a negative value uses DefaultCacheSize.
func NewRistrettoCache(maxEntries int64) (*RistrettoCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "NewRistrettoCache")
	}
	return &RistrettoCache{cache: cache}, nil
}

// Get implements PersonalityCache.
func (c *RistrettoCache) Get(agentID string) (*Personality, bool) {
	v, ok := c.cache.Get(agentID)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Personality)
	return p, ok
}

// Set implements PersonalityCache. The write is visible to Get on return.
//
// Ristretto may drop a write under contention; the engine then rehydrates the
// personality from the memory store on the next read.
func (c *RistrettoCache) Set(agentID string, p *Personality) {
	if c.cache.Set(agentID, p, 1) {
		c.cache.Wait()
	}
}

// Close stops the cache's background goroutines.
func (c *RistrettoCache) Close() {
	c.cache.Close()
}
