package memory

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/similarity"
	"github.com/BaSui01/memflow/tokenizer"
	"github.com/BaSui01/memflow/types"
)

// Strategy selects how Assemble picks candidate items.
type Strategy string

const (
	// StrategyFIFO selects items oldest-first by creation time.
	StrategyFIFO Strategy = "fifo"

	// StrategyLRU selects items least-recently-accessed first.
	StrategyLRU Strategy = "lru"

	// StrategyRelevance ranks items by similarity to the query, breaking
	// ties by recency. Requires a non-empty query.
	StrategyRelevance Strategy = "relevance"
)

// PatternSource exposes consolidated patterns as context candidates. The
// Consolidator implements it.
type PatternSource interface {
	PatternItems() []types.Item
}

// AssembleRequest describes one context assembly.
type AssembleRequest struct {
	// BudgetTokens bounds the estimated token cost of the result.
	BudgetTokens int

	// Strategy selects the candidate ordering.
	Strategy Strategy

	// Query is the text to rank against. Required for StrategyRelevance,
	// ignored otherwise.
	Query string

	// QueryEmbedding, when set, ranks candidates that carry an embedding by
	// cosine similarity instead of the lexical similarity function.
	QueryEmbedding []float64
}

// ContextManager compacts working-buffer and episodic contents into an
// ordered context that fits a token budget.
//
// Token costs come from a pluggable estimator; the default heuristic is
// approximate (roughly 4 characters per token), not exact tokenizer
// behavior, so budgets should carry headroom when the downstream model
// enforces a hard limit.
type ContextManager struct {
	buffer    *WorkingBuffer
	episodic  *EpisodicStore
	patterns  PatternSource
	estimator tokenizer.Estimator
	sim       similarity.Func
	logger    *zap.Logger
}

// ContextManagerConfig configures a ContextManager. Buffer and Episodic
// are required; Patterns, Estimator, and Similarity are optional.
type ContextManagerConfig struct {
	Buffer     *WorkingBuffer
	Episodic   *EpisodicStore
	Patterns   PatternSource
	Estimator  tokenizer.Estimator
	Similarity similarity.Func
}

// NewContextManager creates a context manager.
func NewContextManager(cfg ContextManagerConfig, logger *zap.Logger) (*ContextManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Buffer == nil || cfg.Episodic == nil {
		return nil, types.NewError(types.ErrConfiguration, "context manager requires a working buffer and an episodic store")
	}
	if cfg.Estimator == nil {
		cfg.Estimator = tokenizer.NewHeuristic()
	}
	if cfg.Similarity == nil {
		cfg.Similarity = similarity.Jaccard
	}
	return &ContextManager{
		buffer:    cfg.Buffer,
		episodic:  cfg.Episodic,
		patterns:  cfg.Patterns,
		estimator: cfg.Estimator,
		sim:       cfg.Similarity,
		logger:    logger.With(zap.String("component", "context_manager")),
	}, nil
}

// Assemble returns an ordered sequence of items whose estimated token cost
// does not exceed the budget. Selection walks the strategy's ordering and
// stops at the first item that no longer fits, so the result is identical
// across calls over identical state and arguments. When even the first
// candidate exceeds the budget the result is empty; that is a documented
// edge case, not an error.
func (m *ContextManager) Assemble(ctx context.Context, req AssembleRequest) ([]types.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Strategy == StrategyRelevance && req.Query == "" {
		return nil, types.NewError(types.ErrConfiguration, "relevance strategy requires a query")
	}

	candidates, err := m.candidates(ctx)
	if err != nil {
		return nil, err
	}

	switch req.Strategy {
	case StrategyFIFO:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
	case StrategyLRU:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].LastAccessedAt.Before(candidates[j].LastAccessedAt)
		})
	case StrategyRelevance:
		scores := make(map[string]float64, len(candidates))
		for _, it := range candidates {
			scores[it.ID] = m.score(req, it)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			si, sj := scores[candidates[i].ID], scores[candidates[j].ID]
			if si != sj {
				return si > sj
			}
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		})
	default:
		return nil, types.NewError(types.ErrConfiguration, "unknown assembly strategy %q", req.Strategy)
	}

	selected := make([]types.Item, 0, len(candidates))
	remaining := req.BudgetTokens
	for _, it := range candidates {
		cost := m.estimator.EstimateTokens(it.Content)
		if cost > remaining {
			break
		}
		remaining -= cost
		selected = append(selected, it)
	}

	m.logger.Debug("context assembled",
		zap.String("strategy", string(req.Strategy)),
		zap.Int("budget", req.BudgetTokens),
		zap.Int("selected", len(selected)),
		zap.Int("candidates", len(candidates)))

	return selected, nil
}

// score prefers cosine similarity when both the query and the item carry
// embeddings, falling back to the configured lexical similarity.
func (m *ContextManager) score(req AssembleRequest, it types.Item) float64 {
	if len(req.QueryEmbedding) > 0 && len(it.Embedding) == len(req.QueryEmbedding) {
		return similarity.Cosine(req.QueryEmbedding, it.Embedding)
	}
	return m.sim(req.Query, it.Content)
}

// candidates collects buffer items, episodic items, and pattern items,
// deduplicated by ID with the working-buffer copy winning.
func (m *ContextManager) candidates(ctx context.Context) ([]types.Item, error) {
	seen := make(map[string]struct{})
	out := make([]types.Item, 0)

	for _, it := range m.buffer.Snapshot() {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}

	events, err := m.episodic.Query(ctx, EpisodicQuery{})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if _, ok := seen[ev.Item.ID]; ok {
			continue
		}
		seen[ev.Item.ID] = struct{}{}
		out = append(out, ev.Item)
	}

	if m.patterns != nil {
		for _, it := range m.patterns.PatternItems() {
			if _, ok := seen[it.ID]; ok {
				continue
			}
			seen[it.ID] = struct{}{}
			out = append(out, it)
		}
	}
	return out, nil
}
