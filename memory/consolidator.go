package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/similarity"
	"github.com/BaSui01/memflow/types"
)

// ConsolidatedPattern is a compressed higher-level memory produced from a
// cluster of similar episodes. Its strength rises with reinforcement and
// decays when consolidation passes stop finding matching episodes.
type ConsolidatedPattern struct {
	ID                    string     `json:"id"`
	RepresentativeContent string     `json:"representative_content"`
	SupportingEpisodeIDs  []string   `json:"supporting_episode_ids"`
	Strength              float64    `json:"strength"`
	Tier                  types.Tier `json:"tier"`
	CreatedAt             time.Time  `json:"created_at"`
	LastAccessedAt        time.Time  `json:"last_accessed_at"`

	// ReinforcedPasses counts consolidation passes that found new support.
	ReinforcedPasses int `json:"reinforced_passes"`

	// MissedPasses counts consecutive passes without new support.
	MissedPasses int `json:"missed_passes"`
}

func (p *ConsolidatedPattern) supports(id string) bool {
	for _, s := range p.SupportingEpisodeIDs {
		if s == id {
			return true
		}
	}
	return false
}

// ConsolidatorConfig configures the consolidation state machine.
type ConsolidatorConfig struct {
	// ClusterThreshold is the minimum pairwise similarity for episodes to
	// cluster together or reinforce a pattern.
	ClusterThreshold float64 `json:"cluster_threshold" yaml:"cluster_threshold"`

	// MinClusterSize is the minimum cluster size (K) promoted to a pattern.
	MinClusterSize int `json:"min_cluster_size" yaml:"min_cluster_size"`

	// ReinforceBoost is added to a pattern's strength on each reinforcing
	// pass, capped at 1.0.
	ReinforceBoost float64 `json:"reinforce_boost" yaml:"reinforce_boost"`

	// PromoteAfterPasses promotes a pattern to the abstract tier once it
	// has been reinforced across this many passes.
	PromoteAfterPasses int `json:"promote_after_passes" yaml:"promote_after_passes"`

	// DecayAfterPasses starts decaying a pattern once this many
	// consecutive passes found no new support.
	DecayAfterPasses int `json:"decay_after_passes" yaml:"decay_after_passes"`

	// DecayFactor multiplies the strength of a decaying pattern each pass.
	DecayFactor float64 `json:"decay_factor" yaml:"decay_factor"`

	// ForgetThreshold removes patterns (by strength) and raw episodes (by
	// importance) falling below it, provided they are also stale.
	ForgetThreshold float64 `json:"forget_threshold" yaml:"forget_threshold"`

	// StalenessWindow is how long an entry must have gone unaccessed
	// before it is eligible for forgetting.
	StalenessWindow time.Duration `json:"staleness_window" yaml:"staleness_window"`

	// Now supplies the clock, for tests. Defaults to time.Now.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultConsolidatorConfig returns sensible defaults.
func DefaultConsolidatorConfig() ConsolidatorConfig {
	return ConsolidatorConfig{
		ClusterThreshold:   0.7,
		MinClusterSize:     3,
		ReinforceBoost:     0.1,
		PromoteAfterPasses: 3,
		DecayAfterPasses:   3,
		DecayFactor:        0.9,
		ForgetThreshold:    0.2,
		StalenessWindow:    24 * time.Hour,
	}
}

// ConsolidationReport describes one Consolidate pass. Forgetting is
// destructive and irreversible, so every removed ID is reported rather
// than dropped silently.
type ConsolidationReport struct {
	Pass               int       `json:"pass"`
	Timestamp          time.Time `json:"timestamp"`
	EpisodesConsidered int       `json:"episodes_considered"`
	PromotedIDs        []string  `json:"promoted_ids,omitempty"`
	ReinforcedIDs      []string  `json:"reinforced_ids,omitempty"`
	DecayedIDs         []string  `json:"decayed_ids,omitempty"`
	ForgottenIDs       []string  `json:"forgotten_ids,omitempty"`
}

// Consolidator promotes recurring episodes into pattern and abstract
// memory tiers and applies adaptive forgetting. Transitions run only
// inside an explicit Consolidate call; there is no background loop.
type Consolidator struct {
	mu       sync.RWMutex
	episodic *EpisodicStore
	cfg      ConsolidatorConfig
	sim      similarity.Func
	patterns map[string]*ConsolidatedPattern
	pass     int
	logger   *zap.Logger
}

// NewConsolidator creates a consolidator over the given episodic store.
// Thresholds outside [0,1] or a cluster size below 1 are rejected with a
// CONFIGURATION error.
func NewConsolidator(episodic *EpisodicStore, cfg ConsolidatorConfig, sim similarity.Func, logger *zap.Logger) (*Consolidator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if episodic == nil {
		return nil, types.NewError(types.ErrConfiguration, "consolidator requires an episodic store")
	}
	if cfg.ClusterThreshold < 0 || cfg.ClusterThreshold > 1 {
		return nil, types.NewError(types.ErrConfiguration, "cluster threshold must be in [0,1], got %v", cfg.ClusterThreshold)
	}
	if cfg.ForgetThreshold < 0 || cfg.ForgetThreshold > 1 {
		return nil, types.NewError(types.ErrConfiguration, "forget threshold must be in [0,1], got %v", cfg.ForgetThreshold)
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		return nil, types.NewError(types.ErrConfiguration, "decay factor must be in (0,1), got %v", cfg.DecayFactor)
	}
	if cfg.MinClusterSize < 1 {
		return nil, types.NewError(types.ErrConfiguration, "min cluster size must be >= 1, got %d", cfg.MinClusterSize)
	}
	if sim == nil {
		sim = similarity.Jaccard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Consolidator{
		episodic: episodic,
		cfg:      cfg,
		sim:      sim,
		patterns: make(map[string]*ConsolidatedPattern),
		logger:   logger.With(zap.String("component", "consolidator")),
	}, nil
}

// Consolidate runs one pass: reinforce or decay existing patterns, cluster
// unclaimed episodes into new patterns, then forget entries below the
// forget threshold that exceeded the staleness window.
func (c *Consolidator) Consolidate(ctx context.Context) (*ConsolidationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.episodic.Query(ctx, EpisodicQuery{})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Item.ID == "" {
			return nil, types.NewError(types.ErrDataIntegrity, "episodic event seq %d references a missing item", ev.Seq)
		}
	}

	now := c.cfg.Now()
	c.pass++
	report := &ConsolidationReport{
		Pass:               c.pass,
		Timestamp:          now,
		EpisodesConsidered: len(events),
	}

	claimed := c.reinforce(events, now, report)
	c.cluster(events, claimed, now, report)
	c.forget(now, report)

	c.logger.Info("consolidation pass completed",
		zap.Int("pass", report.Pass),
		zap.Int("episodes", report.EpisodesConsidered),
		zap.Int("promoted", len(report.PromotedIDs)),
		zap.Int("reinforced", len(report.ReinforcedIDs)),
		zap.Int("decayed", len(report.DecayedIDs)),
		zap.Int("forgotten", len(report.ForgottenIDs)))

	return report, nil
}

// reinforce matches episodes against existing patterns. Matched episode
// IDs are claimed so the clustering step does not seed a second pattern
// from the same evidence.
func (c *Consolidator) reinforce(events []EpisodicEvent, now time.Time, report *ConsolidationReport) map[string]struct{} {
	claimed := make(map[string]struct{})

	ordered := c.sortedPatterns()
	for _, p := range ordered {
		for _, id := range p.SupportingEpisodeIDs {
			claimed[id] = struct{}{}
		}
	}

	for _, p := range ordered {
		newSupport := 0
		for i := range events {
			ev := &events[i]
			if p.supports(ev.Item.ID) {
				continue
			}
			if _, taken := claimed[ev.Item.ID]; taken {
				continue
			}
			if c.sim(p.RepresentativeContent, ev.Item.Content) >= c.cfg.ClusterThreshold {
				p.SupportingEpisodeIDs = append(p.SupportingEpisodeIDs, ev.Item.ID)
				claimed[ev.Item.ID] = struct{}{}
				newSupport++
			}
		}

		if newSupport > 0 {
			p.Strength += c.cfg.ReinforceBoost
			if p.Strength > 1.0 {
				p.Strength = 1.0
			}
			p.ReinforcedPasses++
			p.MissedPasses = 0
			p.LastAccessedAt = now
			report.ReinforcedIDs = append(report.ReinforcedIDs, p.ID)

			if p.Tier == types.TierPattern && p.ReinforcedPasses >= c.cfg.PromoteAfterPasses {
				p.Tier = types.TierAbstract
				c.logger.Debug("pattern promoted to abstract tier", zap.String("id", p.ID))
			}
			continue
		}

		p.MissedPasses++
		if p.MissedPasses >= c.cfg.DecayAfterPasses {
			p.Strength *= c.cfg.DecayFactor
			report.DecayedIDs = append(report.DecayedIDs, p.ID)
		}
	}

	return claimed
}

// cluster greedily groups unclaimed episodes by pairwise similarity and
// promotes clusters of MinClusterSize or more into new patterns with
// strength clusterSize / episodesConsidered.
func (c *Consolidator) cluster(events []EpisodicEvent, claimed map[string]struct{}, now time.Time, report *ConsolidationReport) {
	total := len(events)
	if total == 0 {
		return
	}

	// Events arrive newest-first from Query; cluster oldest-first so the
	// seed (and representative content) is the earliest occurrence.
	for i := total - 1; i >= 0; i-- {
		seed := &events[i]
		if _, taken := claimed[seed.Item.ID]; taken {
			continue
		}

		member := []*EpisodicEvent{seed}
		for j := i - 1; j >= 0; j-- {
			cand := &events[j]
			if _, taken := claimed[cand.Item.ID]; taken {
				continue
			}
			if c.sim(seed.Item.Content, cand.Item.Content) >= c.cfg.ClusterThreshold {
				member = append(member, cand)
			}
		}

		if len(member) < c.cfg.MinClusterSize {
			continue
		}

		p := &ConsolidatedPattern{
			ID:                    uuid.NewString(),
			RepresentativeContent: seed.Item.Content,
			Strength:              float64(len(member)) / float64(total),
			Tier:                  types.TierPattern,
			CreatedAt:             now,
			LastAccessedAt:        now,
		}
		for _, ev := range member {
			p.SupportingEpisodeIDs = append(p.SupportingEpisodeIDs, ev.Item.ID)
			claimed[ev.Item.ID] = struct{}{}
		}

		c.patterns[p.ID] = p
		report.PromotedIDs = append(report.PromotedIDs, p.ID)

		c.logger.Debug("cluster promoted to pattern",
			zap.String("id", p.ID),
			zap.Int("cluster_size", len(member)),
			zap.Float64("strength", p.Strength))
	}
}

// forget destructively removes weak, stale patterns and episodes. Removed
// IDs land in the report; removal is irreversible.
func (c *Consolidator) forget(now time.Time, report *ConsolidationReport) {
	stale := func(last time.Time) bool {
		return now.Sub(last) > c.cfg.StalenessWindow
	}

	for _, p := range c.sortedPatterns() {
		if p.Strength < c.cfg.ForgetThreshold && stale(p.LastAccessedAt) {
			delete(c.patterns, p.ID)
			report.ForgottenIDs = append(report.ForgottenIDs, p.ID)
		}
	}

	events, err := c.episodic.Query(context.Background(), EpisodicQuery{})
	if err != nil {
		return
	}
	doomed := make(map[string]struct{})
	for _, ev := range events {
		if ev.Item.Importance < c.cfg.ForgetThreshold && stale(ev.Item.LastAccessedAt) {
			doomed[ev.Item.ID] = struct{}{}
			report.ForgottenIDs = append(report.ForgottenIDs, ev.Item.ID)
		}
	}
	if len(doomed) > 0 {
		c.episodic.remove(doomed)
	}
}

// sortedPatterns returns the live pattern pointers in a deterministic
// order, so pass effects do not depend on map iteration. Callers hold the
// lock.
func (c *Consolidator) sortedPatterns() []*ConsolidatedPattern {
	out := make([]*ConsolidatedPattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Patterns returns a copy of the current consolidated patterns.
func (c *Consolidator) Patterns() []ConsolidatedPattern {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ConsolidatedPattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		cp := *p
		cp.SupportingEpisodeIDs = append([]string(nil), p.SupportingEpisodeIDs...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RestorePatterns replaces the pattern collection, for persistence loads.
func (c *Consolidator) RestorePatterns(patterns []ConsolidatedPattern) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.patterns = make(map[string]*ConsolidatedPattern, len(patterns))
	for i := range patterns {
		p := patterns[i]
		p.SupportingEpisodeIDs = append([]string(nil), patterns[i].SupportingEpisodeIDs...)
		c.patterns[p.ID] = &p
	}
}

// PatternItems exposes patterns as context candidates, implementing
// [PatternSource]. Strength maps onto item importance.
func (c *Consolidator) PatternItems() []types.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.Item, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, types.Item{
			ID:             p.ID,
			Content:        p.RepresentativeContent,
			CreatedAt:      p.CreatedAt,
			LastAccessedAt: p.LastAccessedAt,
			Importance:     types.ClampImportance(p.Strength),
			Tier:           p.Tier,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
