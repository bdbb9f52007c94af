package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

func appendEpisode(t *testing.T, store *EpisodicStore, content string, importance float64, now time.Time) types.Item {
	t.Helper()
	it := types.NewItem(content, importance, types.TierEpisodic, now)
	require.NoError(t, store.Append(context.Background(), EpisodicEvent{Item: it}))
	return it
}

func TestNewConsolidator_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.ClusterThreshold = 1.5
	_, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.True(t, types.IsCode(err, types.ErrConfiguration))

	cfg = DefaultConsolidatorConfig()
	cfg.DecayFactor = 1.0
	_, err = NewConsolidator(store, cfg, nil, zap.NewNop())
	require.True(t, types.IsCode(err, types.ErrConfiguration))

	cfg = DefaultConsolidatorConfig()
	cfg.MinClusterSize = 0
	_, err = NewConsolidator(store, cfg, nil, zap.NewNop())
	require.True(t, types.IsCode(err, types.ErrConfiguration))

	_, err = NewConsolidator(nil, DefaultConsolidatorConfig(), nil, zap.NewNop())
	require.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestConsolidator_PromotesCluster(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.MinClusterSize = 3
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	// Five pairwise-similar episodes; strength = 5/5.
	for i := 0; i < 5; i++ {
		appendEpisode(t, store, "user asked about python", 0.5, now.Add(time.Duration(i)*time.Second))
	}

	report, err := cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, report.PromotedIDs, 1)
	require.Equal(t, 5, report.EpisodesConsidered)

	patterns := cons.Patterns()
	require.Len(t, patterns, 1)
	require.Equal(t, 1.0, patterns[0].Strength)
	require.Equal(t, types.TierPattern, patterns[0].Tier)
	require.Equal(t, "user asked about python", patterns[0].RepresentativeContent)
	require.Len(t, patterns[0].SupportingEpisodeIDs, 5)
}

func TestConsolidator_ClusterBelowKNotPromoted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.MinClusterSize = 3
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	appendEpisode(t, store, "user asked about python", 0.5, now)
	appendEpisode(t, store, "user asked about python", 0.5, now)

	report, err := cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Empty(t, report.PromotedIDs)
	require.Empty(t, cons.Patterns())
}

func TestConsolidator_ReinforcementIncreasesStrength(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.MinClusterSize = 3
	cfg.ReinforceBoost = 0.1
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	// 3 similar of 5 total: strength 3/5 = 0.6.
	for i := 0; i < 3; i++ {
		appendEpisode(t, store, "user asked about python", 0.5, now)
	}
	appendEpisode(t, store, "totally unrelated words here", 0.5, now)
	appendEpisode(t, store, "another different thing altogether", 0.5, now)

	report, err := cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, report.PromotedIDs, 1)
	require.InDelta(t, 0.6, cons.Patterns()[0].Strength, 1e-9)

	// A new matching episode reinforces the pattern instead of seeding a
	// second one.
	appendEpisode(t, store, "user asked about python", 0.5, now.Add(time.Second))

	report, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Empty(t, report.PromotedIDs)
	require.Len(t, report.ReinforcedIDs, 1)

	p := cons.Patterns()[0]
	require.InDelta(t, 0.7, p.Strength, 1e-9)
	require.Len(t, p.SupportingEpisodeIDs, 4)
}

func TestConsolidator_StrengthCappedAtOne(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.MinClusterSize = 3
	cfg.ReinforceBoost = 0.5
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		appendEpisode(t, store, "user asked about python", 0.5, now)
	}
	_, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1.0, cons.Patterns()[0].Strength)

	appendEpisode(t, store, "user asked about python", 0.5, now)
	_, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1.0, cons.Patterns()[0].Strength)
}

func TestConsolidator_DecayAfterMissedPasses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.MinClusterSize = 3
	cfg.DecayAfterPasses = 2
	cfg.DecayFactor = 0.9
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		appendEpisode(t, store, "user asked about python", 0.5, now)
	}
	_, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1.0, cons.Patterns()[0].Strength)

	// First miss: within patience, no decay yet.
	report, err := cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Empty(t, report.DecayedIDs)
	require.Equal(t, 1.0, cons.Patterns()[0].Strength)

	// Second consecutive miss: decay kicks in.
	report, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, report.DecayedIDs, 1)
	require.InDelta(t, 0.9, cons.Patterns()[0].Strength, 1e-9)
}

func TestConsolidator_PromotionToAbstractTier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.MinClusterSize = 3
	cfg.PromoteAfterPasses = 2
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		appendEpisode(t, store, "user asked about python", 0.5, now)
	}
	_, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, types.TierPattern, cons.Patterns()[0].Tier)

	for pass := 0; pass < 2; pass++ {
		appendEpisode(t, store, "user asked about python", 0.5, now.Add(time.Duration(pass+1)*time.Second))
		_, err = cons.Consolidate(ctx)
		require.NoError(t, err)
	}

	require.Equal(t, types.TierAbstract, cons.Patterns()[0].Tier)
}

func TestConsolidator_ForgettingIsIrreversibleAndReported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.ForgetThreshold = 0.2
	cfg.StalenessWindow = time.Hour
	cfg.Now = func() time.Time { return clock }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	weak := appendEpisode(t, store, "barely noticed remark", 0.0, now)
	strong := appendEpisode(t, store, "important user preference", 0.9, now)

	cons.RestorePatterns([]ConsolidatedPattern{{
		ID:                    "p-weak",
		RepresentativeContent: "fading pattern",
		Strength:              0.1,
		Tier:                  types.TierPattern,
		CreatedAt:             now,
		LastAccessedAt:        now,
	}})

	// Not yet stale: nothing is forgotten.
	report, err := cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Empty(t, report.ForgottenIDs)

	// Past the staleness window both the weak episode and the weak pattern
	// go, and both are reported.
	clock = now.Add(2 * time.Hour)
	report, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.Contains(t, report.ForgottenIDs, weak.ID)
	require.Contains(t, report.ForgottenIDs, "p-weak")

	// Forgotten entries never reappear.
	events, err := store.Query(ctx, EpisodicQuery{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, strong.ID, events[0].Item.ID)
	require.Empty(t, cons.Patterns())

	report, err = cons.Consolidate(ctx)
	require.NoError(t, err)
	require.NotContains(t, report.ForgottenIDs, weak.ID)
}

func TestConsolidator_DataIntegrityError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	// An event with no item ID is a dangling reference.
	require.NoError(t, store.Append(ctx, EpisodicEvent{Item: types.Item{Content: "orphan"}}))

	_, err = cons.Consolidate(ctx)
	require.Error(t, err)
	require.True(t, types.IsCode(err, types.ErrDataIntegrity))
}

func TestConsolidator_PatternItems(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewEpisodicStore(zap.NewNop())

	cfg := DefaultConsolidatorConfig()
	cfg.Now = func() time.Time { return now }
	cons, err := NewConsolidator(store, cfg, nil, zap.NewNop())
	require.NoError(t, err)

	cons.RestorePatterns([]ConsolidatedPattern{{
		ID:                    "p1",
		RepresentativeContent: "users often ask about python",
		Strength:              0.8,
		Tier:                  types.TierPattern,
		CreatedAt:             now,
		LastAccessedAt:        now,
	}})

	items := cons.PatternItems()
	require.Len(t, items, 1)
	require.Equal(t, "p1", items[0].ID)
	require.Equal(t, 0.8, items[0].Importance)
	require.Equal(t, types.TierPattern, items[0].Tier)
}
