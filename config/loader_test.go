package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 7, cfg.Working.Capacity)
	assert.Equal(t, "fifo", cfg.Working.Policy)

	assert.Equal(t, 2000, cfg.Context.BudgetTokens)
	assert.Equal(t, "fifo", cfg.Context.Strategy)

	assert.Equal(t, 1000, cfg.Cache.ExactMaxSize)
	assert.Equal(t, 0.7, cfg.Cache.SimilarityThreshold)

	assert.Equal(t, 3, cfg.Consolidation.MinClusterSize)
	assert.Equal(t, 0.9, cfg.Consolidation.DecayFactor)
	assert.Equal(t, 24*time.Hour, cfg.Consolidation.StalenessWindow)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, "none", cfg.Persistence.Backend)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 7, cfg.Working.Capacity)
	assert.Equal(t, "fifo", cfg.Context.Strategy)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Working.Capacity)
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memflow.yaml")
	data := `
working:
  capacity: 5
  policy: lru
context:
  budget_tokens: 512
  strategy: relevance
cache:
  similarity_threshold: 0.85
consolidation:
  staleness_window: 1h
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Working.Capacity)
	assert.Equal(t, "lru", cfg.Working.Policy)
	assert.Equal(t, 512, cfg.Context.BudgetTokens)
	assert.Equal(t, "relevance", cfg.Context.Strategy)
	assert.Equal(t, 0.85, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, time.Hour, cfg.Consolidation.StalenessWindow)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Cache.ExactMaxSize)
	assert.Equal(t, 3, cfg.Consolidation.MinClusterSize)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("working: [not a map"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("MEMFLOW_WORKING_CAPACITY", "9")
	t.Setenv("MEMFLOW_WORKING_POLICY", "lru")
	t.Setenv("MEMFLOW_CONSOLIDATION_STALENESS_WINDOW", "30m")
	t.Setenv("MEMFLOW_REDIS_ENABLED", "true")
	t.Setenv("MEMFLOW_REDIS_ADDR", "redis:6379")
	t.Setenv("MEMFLOW_REDIS_TTL", "15m")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Working.Capacity)
	assert.Equal(t, "lru", cfg.Working.Policy)
	assert.Equal(t, 30*time.Minute, cfg.Consolidation.StalenessWindow)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Redis.TTL)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("APP_WORKING_CAPACITY", "4")

	cfg, err := NewLoader().WithEnvPrefix("APP").Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Working.Capacity)
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return types.NewError(types.ErrConfiguration, "rejected")
		}).
		Load()
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Working.Capacity = 0 }},
		{"unknown policy", func(c *Config) { c.Working.Policy = "mru" }},
		{"negative budget", func(c *Config) { c.Context.BudgetTokens = -1 }},
		{"unknown strategy", func(c *Config) { c.Context.Strategy = "random" }},
		{"threshold above one", func(c *Config) { c.Cache.SimilarityThreshold = 1.5 }},
		{"cluster threshold negative", func(c *Config) { c.Consolidation.ClusterThreshold = -0.1 }},
		{"zero cluster size", func(c *Config) { c.Consolidation.MinClusterSize = 0 }},
		{"decay factor one", func(c *Config) { c.Consolidation.DecayFactor = 1.0 }},
		{"zero staleness window", func(c *Config) { c.Consolidation.StalenessWindow = 0 }},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"redis enabled without ttl", func(c *Config) { c.Redis.Enabled = true; c.Redis.TTL = 0 }},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "s3" }},
		{"file backend without path", func(c *Config) { c.Persistence.Backend = "file" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
		})
	}

	require.NoError(t, DefaultConfig().Validate())
}
