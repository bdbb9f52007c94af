// Package memflow provides the top-level entry point for the tiered memory
// and cache engine: a working buffer, an episodic log, a consolidator that
// distills episodes into patterns, response caches, and a context assembler,
// composed behind a single Engine.
//
// Usage:
//
//	import "github.com/BaSui01/memflow"
//
//	eng, err := memflow.New(nil, memflow.WithGenerator(myLLM))
//	eng.Remember(ctx, "user prefers concise answers", 0.8, "preference")
//	answer, err := eng.Ask(ctx, "how should I phrase this reply?")
package memflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/cache"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/persist"
	"github.com/BaSui01/memflow/similarity"
	"github.com/BaSui01/memflow/tokenizer"
	"github.com/BaSui01/memflow/types"
)

// Generator produces a response for a query given assembled context text.
// Implementations typically wrap an LLM client.
type Generator interface {
	Generate(ctx context.Context, contextText, query string) (string, error)
}

// Embedder maps text to a vector. When configured, remembered items and
// queries carry embeddings and relevance ranking uses cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Answer sources, reported on every Ask.
const (
	SourceExactCache    = "exact_cache"
	SourceRedisCache    = "redis_cache"
	SourceSemanticCache = "semantic_cache"
	SourceGenerated     = "generated"
)

// Answer is the result of one Ask call.
type Answer struct {
	// Response is the returned text.
	Response string `json:"response"`

	// Source records which tier answered: a cache or the generator.
	Source string `json:"source"`

	// ContextItems counts the items assembled into the generation context.
	// Zero for cache hits.
	ContextItems int `json:"context_items"`
}

// Option configures the engine created by [New].
type Option func(*engineOptions)

type engineOptions struct {
	logger      *zap.Logger
	generator   Generator
	embedder    Embedder
	estimator   tokenizer.Estimator
	now         func() time.Time
	metrics     *cache.Metrics
	sim         similarity.Func
	redisClient *redis.Client
	store       persist.Store
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithGenerator sets the response generator. Without one, every cache miss
// fails with a GENERATION_UNAVAILABLE error.
func WithGenerator(g Generator) Option {
	return func(o *engineOptions) { o.generator = g }
}

// WithEmbedder sets the embedder used for items and relevance queries.
func WithEmbedder(e Embedder) Option {
	return func(o *engineOptions) { o.embedder = e }
}

// WithTokenEstimator overrides the token estimator used for budgeting.
func WithTokenEstimator(est tokenizer.Estimator) Option {
	return func(o *engineOptions) { o.estimator = est }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithMetrics wires cache hit/miss/size observations into Prometheus.
func WithMetrics(m *cache.Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithSimilarity overrides the text similarity function used by the
// semantic cache, the consolidator, and relevance ranking.
func WithSimilarity(sim similarity.Func) Option {
	return func(o *engineOptions) { o.sim = sim }
}

// WithRedisClient injects a pre-built Redis client for the shared cache
// tier. Implies ownership stays with the caller.
func WithRedisClient(client *redis.Client) Option {
	return func(o *engineOptions) { o.redisClient = client }
}

// WithStore overrides the snapshot store chosen by configuration.
func WithStore(store persist.Store) Option {
	return func(o *engineOptions) { o.store = store }
}

// Engine composes the memory tiers and caches into one conversational
// memory system. All methods are safe for concurrent use.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time

	buffer       *memory.WorkingBuffer
	episodic     *memory.EpisodicStore
	contextMgr   *memory.ContextManager
	consolidator *memory.Consolidator
	exact        *cache.ExactCache
	semantic     *cache.SemanticCache
	remote       *cache.RedisCache
	store        persist.Store

	generator Generator
	embedder  Embedder

	redisClient *redis.Client
	ownsRedis   bool

	// tagMu guards pendingTags: tags attached to buffer-resident items,
	// applied when eviction demotes the item to the episodic log.
	tagMu       sync.Mutex
	pendingTags map[string][]string
}

// New creates an engine from the given configuration. A nil cfg uses
// [config.DefaultConfig]. Invalid configuration is rejected up front with
// a CONFIGURATION error; no half-built engine is returned.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sim == nil {
		o.sim = similarity.Jaccard
	}
	if o.estimator == nil {
		if cfg.Context.Model != "" {
			o.estimator = tokenizer.NewTiktoken(cfg.Context.Model)
		} else {
			o.estimator = tokenizer.NewHeuristic()
		}
	}

	logger := o.logger.With(zap.String("component", "engine"))

	buffer, err := memory.NewWorkingBuffer(memory.WorkingBufferConfig{
		Capacity: cfg.Working.Capacity,
		Policy:   memory.EvictionPolicy(cfg.Working.Policy),
		Now:      o.now,
	}, o.logger)
	if err != nil {
		return nil, err
	}

	episodic := memory.NewEpisodicStore(o.logger)

	consolidator, err := memory.NewConsolidator(episodic, memory.ConsolidatorConfig{
		ClusterThreshold:   cfg.Consolidation.ClusterThreshold,
		MinClusterSize:     cfg.Consolidation.MinClusterSize,
		ReinforceBoost:     cfg.Consolidation.ReinforceBoost,
		PromoteAfterPasses: cfg.Consolidation.PromoteAfterPasses,
		DecayAfterPasses:   cfg.Consolidation.DecayAfterPasses,
		DecayFactor:        cfg.Consolidation.DecayFactor,
		ForgetThreshold:    cfg.Consolidation.ForgetThreshold,
		StalenessWindow:    cfg.Consolidation.StalenessWindow,
		Now:                o.now,
	}, o.sim, o.logger)
	if err != nil {
		return nil, err
	}

	contextMgr, err := memory.NewContextManager(memory.ContextManagerConfig{
		Buffer:     buffer,
		Episodic:   episodic,
		Patterns:   consolidator,
		Estimator:  o.estimator,
		Similarity: o.sim,
	}, o.logger)
	if err != nil {
		return nil, err
	}

	exact, err := cache.NewExactCache(cache.ExactCacheConfig{
		MaxSize: cfg.Cache.ExactMaxSize,
		Now:     o.now,
		Metrics: o.metrics,
	}, o.logger)
	if err != nil {
		return nil, err
	}

	semantic, err := cache.NewSemanticCache(cache.SemanticCacheConfig{
		Threshold:  cfg.Cache.SimilarityThreshold,
		Similarity: o.sim,
		Now:        o.now,
		Metrics:    o.metrics,
	}, o.logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		logger:       logger,
		now:          o.now,
		buffer:       buffer,
		episodic:     episodic,
		contextMgr:   contextMgr,
		consolidator: consolidator,
		exact:        exact,
		semantic:     semantic,
		generator:    o.generator,
		embedder:     o.embedder,
		pendingTags:  make(map[string][]string),
	}

	if cfg.Redis.Enabled {
		client := o.redisClient
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			e.ownsRedis = true
		}
		e.redisClient = client

		remote, err := cache.NewRedisCache(client, cache.RedisCacheConfig{
			TTL:     cfg.Redis.TTL,
			Metrics: o.metrics,
		}, o.logger)
		if err != nil {
			return nil, err
		}
		e.remote = remote
	}

	e.store = o.store
	if e.store == nil {
		switch cfg.Persistence.Backend {
		case "file":
			e.store = persist.NewFileStore(cfg.Persistence.Path, o.logger)
		case "sqlite":
			sqlStore, err := persist.NewSQLiteStore(cfg.Persistence.Path, o.logger)
			if err != nil {
				return nil, err
			}
			e.store = sqlStore
		}
	}

	return e, nil
}

// Remember records an interaction item into working memory. When the push
// breaches capacity, the evicted item is demoted to the episodic log with
// the tags it was remembered with, rather than discarded.
func (e *Engine) Remember(ctx context.Context, content string, importance float64, tags ...string) (types.Item, error) {
	if err := ctx.Err(); err != nil {
		return types.Item{}, err
	}
	if strings.TrimSpace(content) == "" {
		return types.Item{}, types.NewError(types.ErrDataIntegrity, "cannot remember empty content")
	}

	item := types.NewItem(content, importance, types.TierWorking, e.now())

	if e.embedder != nil {
		emb, err := e.embedder.Embed(ctx, content)
		if err != nil {
			e.logger.Warn("embedding failed, storing item without one",
				zap.String("id", item.ID), zap.Error(err))
		} else {
			item.Embedding = emb
		}
	}

	e.tagMu.Lock()
	e.pendingTags[item.ID] = append([]string(nil), tags...)
	e.tagMu.Unlock()

	evicted := e.buffer.Push(item)
	if evicted != nil {
		if err := e.demote(ctx, *evicted); err != nil {
			return types.Item{}, err
		}
	}

	return item, nil
}

// demote moves an evicted working item into the episodic log.
func (e *Engine) demote(ctx context.Context, item types.Item) error {
	e.tagMu.Lock()
	tags := e.pendingTags[item.ID]
	delete(e.pendingTags, item.ID)
	e.tagMu.Unlock()

	item.Tier = types.TierEpisodic
	if err := e.episodic.Append(ctx, memory.EpisodicEvent{Item: item, Tags: tags}); err != nil {
		return err
	}

	e.logger.Debug("working item demoted to episodic log", zap.String("id", item.ID))
	return nil
}

// Ask answers a query. Lookup order: exact cache, Redis tier when enabled,
// semantic cache, then the generator over freshly assembled context. A
// generator failure is returned as a GENERATION_UNAVAILABLE error and
// leaves every tier untouched; on success the response is cached and the
// exchange is remembered.
func (e *Engine) Ask(ctx context.Context, query string) (*Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrDataIntegrity, "cannot answer empty query")
	}

	if resp, ok := e.exact.Get(query); ok {
		return &Answer{Response: resp, Source: SourceExactCache}, nil
	}

	if e.remote != nil {
		resp, err := e.remote.Get(ctx, query)
		switch {
		case err == nil:
			e.exact.Set(query, resp)
			return &Answer{Response: resp, Source: SourceRedisCache}, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			e.logger.Warn("redis cache lookup failed", zap.Error(err))
		}
	}

	if resp, ok := e.semantic.Get(query); ok {
		return &Answer{Response: resp, Source: SourceSemanticCache}, nil
	}

	if e.generator == nil {
		return nil, types.NewError(types.ErrGenerationUnavailable, "no generator configured")
	}

	req := memory.AssembleRequest{
		BudgetTokens: e.cfg.Context.BudgetTokens,
		Strategy:     memory.Strategy(e.cfg.Context.Strategy),
		Query:        query,
	}
	if e.embedder != nil {
		emb, err := e.embedder.Embed(ctx, query)
		if err != nil {
			e.logger.Warn("query embedding failed, ranking lexically", zap.Error(err))
		} else {
			req.QueryEmbedding = emb
		}
	}

	items, err := e.contextMgr.Assemble(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := e.generator.Generate(ctx, contextText(items), query)
	if err != nil {
		return nil, types.NewError(types.ErrGenerationUnavailable, "generator failed for query").WithCause(err)
	}

	e.exact.Set(query, resp)
	e.semantic.Set(query, resp)
	if e.remote != nil {
		if err := e.remote.Set(ctx, query, resp); err != nil {
			e.logger.Warn("redis cache write failed", zap.Error(err))
		}
	}

	if _, err := e.Remember(ctx, "Q: "+query+"\nA: "+resp, 0.5, "conversation"); err != nil {
		return nil, err
	}

	return &Answer{Response: resp, Source: SourceGenerated, ContextItems: len(items)}, nil
}

func contextText(items []types.Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Content)
	}
	return strings.Join(parts, "\n")
}

// Consolidate runs one consolidation pass over the episodic log: cluster,
// reinforce, decay, forget. The returned report lists every promoted,
// reinforced, decayed, and forgotten ID.
func (e *Engine) Consolidate(ctx context.Context) (*memory.ConsolidationReport, error) {
	return e.consolidator.Consolidate(ctx)
}

// Patterns returns the current consolidated patterns.
func (e *Engine) Patterns() []memory.ConsolidatedPattern {
	return e.consolidator.Patterns()
}

// Recall queries the episodic log directly, newest-first.
func (e *Engine) Recall(ctx context.Context, q memory.EpisodicQuery) ([]memory.EpisodicEvent, error) {
	return e.episodic.Query(ctx, q)
}

// AssembleContext exposes context assembly for callers that drive their
// own generation.
func (e *Engine) AssembleContext(ctx context.Context, req memory.AssembleRequest) ([]types.Item, error) {
	return e.contextMgr.Assemble(ctx, req)
}

// Stats summarizes the engine's current occupancy and cache behavior.
type Stats struct {
	WorkingLen    int         `json:"working_len"`
	EpisodicLen   int         `json:"episodic_len"`
	PatternCount  int         `json:"pattern_count"`
	ExactCache    cache.Stats `json:"exact_cache"`
	SemanticCache cache.Stats `json:"semantic_cache"`
}

// Stats returns current occupancy and cache counters.
func (e *Engine) Stats() Stats {
	return Stats{
		WorkingLen:    e.buffer.Len(),
		EpisodicLen:   e.episodic.Len(),
		PatternCount:  len(e.consolidator.Patterns()),
		ExactCache:    e.exact.Stats(),
		SemanticCache: e.semantic.Stats(),
	}
}

// Snapshot captures the full engine state: working items, episodes,
// patterns, and cache entries.
func (e *Engine) Snapshot(ctx context.Context) (*persist.Snapshot, error) {
	episodes, err := e.episodic.Query(ctx, memory.EpisodicQuery{})
	if err != nil {
		return nil, err
	}
	return &persist.Snapshot{
		SavedAt:         e.now(),
		WorkingItems:    e.buffer.Snapshot(),
		Episodes:        episodes,
		Patterns:        e.consolidator.Patterns(),
		ExactEntries:    e.exact.Entries(),
		SemanticEntries: e.semantic.Entries(),
	}, nil
}

// Restore replaces the engine state with a previously captured snapshot.
// Tags still pending on buffer-resident items are not part of snapshots.
func (e *Engine) Restore(snapshot *persist.Snapshot) error {
	if snapshot == nil {
		return types.NewError(types.ErrDataIntegrity, "cannot restore nil snapshot")
	}

	e.buffer.Clear()
	for _, it := range snapshot.WorkingItems {
		e.buffer.Push(it)
	}
	e.episodic.Restore(snapshot.Episodes)
	e.consolidator.RestorePatterns(snapshot.Patterns)
	e.exact.Restore(snapshot.ExactEntries)
	e.semantic.Restore(snapshot.SemanticEntries)

	e.tagMu.Lock()
	e.pendingTags = make(map[string][]string)
	e.tagMu.Unlock()

	e.logger.Info("engine state restored",
		zap.Time("saved_at", snapshot.SavedAt),
		zap.Int("working_items", len(snapshot.WorkingItems)),
		zap.Int("episodes", len(snapshot.Episodes)),
		zap.Int("patterns", len(snapshot.Patterns)))
	return nil
}

// Save captures a snapshot and writes it to the configured store.
func (e *Engine) Save(ctx context.Context) error {
	if e.store == nil {
		return types.NewError(types.ErrConfiguration, "no snapshot store configured")
	}
	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return err
	}
	return e.store.Save(ctx, snapshot)
}

// Load restores the latest snapshot from the configured store. A store
// with no snapshot yet is a no-op, not an error.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return types.NewError(types.ErrConfiguration, "no snapshot store configured")
	}
	snapshot, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	return e.Restore(snapshot)
}

// Close releases resources the engine owns. A Redis client injected via
// [WithRedisClient] is left open for its owner.
func (e *Engine) Close() error {
	if e.ownsRedis && e.redisClient != nil {
		return e.redisClient.Close()
	}
	return nil
}
