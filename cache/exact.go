package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// DefaultExactMaxSize bounds the exact cache when no size is configured.
const DefaultExactMaxSize = 1000

// ExactCacheConfig configures an ExactCache.
type ExactCacheConfig struct {
	// MaxSize bounds the entry count. Must be >= 0; zero selects
	// DefaultExactMaxSize.
	MaxSize int `json:"max_size" yaml:"max_size"`

	// Now supplies the clock, for tests. Defaults to time.Now.
	Now func() time.Time `json:"-" yaml:"-"`

	// Metrics, when set, receives hit/miss/size observations.
	Metrics *Metrics `json:"-" yaml:"-"`
}

// ExactEntry is a stored query/response pair, exported for persistence.
type ExactEntry struct {
	Key       string    `json:"key"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// ExactCache maps a normalized query hash to a previously produced
// response. It is bounded: overflow evicts the single oldest entry by
// creation time, found by a linear scan. At the intended scale (hundreds
// to low thousands of entries) the O(n) scan is a known, acceptable
// inefficiency rather than a defect.
type ExactCache struct {
	mu      sync.Mutex
	entries map[string]*ExactEntry
	hits    uint64
	misses  uint64
	cfg     ExactCacheConfig
	logger  *zap.Logger
}

// NewExactCache creates an exact-match cache. A negative MaxSize is
// rejected with a CONFIGURATION error.
func NewExactCache(cfg ExactCacheConfig, logger *zap.Logger) (*ExactCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSize < 0 {
		return nil, types.NewError(types.ErrConfiguration, "exact cache max size must be >= 0 (0 uses the default), got %d", cfg.MaxSize)
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultExactMaxSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ExactCache{
		entries: make(map[string]*ExactEntry),
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "exact_cache")),
	}, nil
}

// Get returns the cached response for query, or "" and false on a miss.
func (c *ExactCache) Get(query string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[Key(query)]
	if !ok {
		c.misses++
		c.cfg.Metrics.observeMiss("exact")
		return "", false
	}

	c.hits++
	c.cfg.Metrics.observeHit("exact")
	return entry.Response, true
}

// Set stores the response for query, overwriting any entry under the same
// normalized key. When the store is full it first evicts the oldest entry
// by creation time.
func (c *ExactCache) Set(query, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(query)
	if entry, ok := c.entries[key]; ok {
		entry.Response = response
		return
	}

	if len(c.entries) >= c.cfg.MaxSize {
		c.evictOldest()
	}

	c.entries[key] = &ExactEntry{
		Key:       key,
		Response:  response,
		CreatedAt: c.cfg.Now(),
	}
	c.cfg.Metrics.setSize("exact", len(c.entries))
}

// evictOldest removes the single oldest-by-creation entry. Linear scan;
// callers hold the lock.
func (c *ExactCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldestAt) ||
			(entry.CreatedAt.Equal(oldestAt) && key < oldestKey) {
			oldestKey = key
			oldestAt = entry.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.logger.Debug("exact cache eviction", zap.String("key", oldestKey))
	}
}

// Stats returns cumulative counters and the current size.
func (c *ExactCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

// Entries returns a copy of all entries, for persistence.
func (c *ExactCache) Entries() []ExactEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ExactEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, *entry)
	}
	return out
}

// Restore replaces the cache contents, for persistence loads. Counters are
// not restored; they describe the current process only.
func (c *ExactCache) Restore(entries []ExactEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*ExactEntry, len(entries))
	for i := range entries {
		entry := entries[i]
		c.entries[entry.Key] = &entry
	}
}
