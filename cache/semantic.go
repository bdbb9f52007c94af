package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/similarity"
	"github.com/BaSui01/memflow/types"
)

// DefaultSimilarityThreshold is the minimum similarity for a semantic hit.
const DefaultSimilarityThreshold = 0.7

// SemanticCacheConfig configures a SemanticCache.
type SemanticCacheConfig struct {
	// Threshold is the minimum similarity score for a hit, compared with
	// >=. Must be in [0,1]. Zero means unset and selects
	// DefaultSimilarityThreshold, so an always-hit threshold of exactly 0
	// is not configurable; the lowest effective threshold is any positive
	// value.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Similarity scores a lookup query against stored queries. Defaults to
	// lexical Jaccard over word sets.
	Similarity similarity.Func `json:"-" yaml:"-"`

	// Now supplies the clock, for tests. Defaults to time.Now.
	Now func() time.Time `json:"-" yaml:"-"`

	// Metrics, when set, receives hit/miss/size observations.
	Metrics *Metrics `json:"-" yaml:"-"`
}

// SemanticEntry is a stored query/response pair, exported for persistence.
type SemanticEntry struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// SemanticCache returns cached responses for queries sufficiently similar
// to earlier ones. Every lookup scores the query against every stored
// entry, and Set never evicts, so lookup cost and memory grow with the
// entry count. Callers needing a bound should front it with an ExactCache
// or reset the engine per session.
type SemanticCache struct {
	mu      sync.Mutex
	entries []SemanticEntry
	hits    uint64
	misses  uint64
	cfg     SemanticCacheConfig
	logger  *zap.Logger
}

// NewSemanticCache creates a semantic cache. A threshold outside [0,1] is
// rejected with a CONFIGURATION error.
func NewSemanticCache(cfg SemanticCacheConfig, logger *zap.Logger) (*SemanticCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, types.NewError(types.ErrConfiguration, "similarity threshold must be in [0,1], got %v", cfg.Threshold)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultSimilarityThreshold
	}
	if cfg.Similarity == nil {
		cfg.Similarity = similarity.Jaccard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SemanticCache{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "semantic_cache")),
	}, nil
}

// Get returns the response of the highest-scoring stored entry iff that
// score >= the threshold, and "" with false otherwise. Ties go to the most
// recently inserted entry.
func (c *SemanticCache) Get(query string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bestScore := -1.0
	bestIdx := -1
	// Newest-first walk so a strictly-greater comparison leaves ties with
	// the most recently inserted entry.
	for i := len(c.entries) - 1; i >= 0; i-- {
		score := c.cfg.Similarity(query, c.entries[i].Query)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestScore < c.cfg.Threshold {
		c.misses++
		c.cfg.Metrics.observeMiss("semantic")
		return "", false
	}

	c.hits++
	c.cfg.Metrics.observeHit("semantic")
	c.logger.Debug("semantic cache hit",
		zap.Float64("score", bestScore),
		zap.String("matched_query", c.entries[bestIdx].Query))
	return c.entries[bestIdx].Response, true
}

// Set appends the query/response pair. It never evicts.
func (c *SemanticCache) Set(query, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, SemanticEntry{
		Query:     query,
		Response:  response,
		CreatedAt: c.cfg.Now(),
	})
	c.cfg.Metrics.setSize("semantic", len(c.entries))
}

// Stats returns cumulative counters and the current size.
func (c *SemanticCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

// Entries returns a copy of all entries, for persistence.
func (c *SemanticCache) Entries() []SemanticEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SemanticEntry(nil), c.entries...)
}

// Restore replaces the cache contents, for persistence loads.
func (c *SemanticCache) Restore(entries []SemanticEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append([]SemanticEntry(nil), entries...)
}
