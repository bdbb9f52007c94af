package config

import "time"

// DefaultConfig returns the configuration every loader starts from.
func DefaultConfig() *Config {
	return &Config{
		Working:       DefaultWorkingConfig(),
		Context:       DefaultContextConfig(),
		Cache:         DefaultCacheConfig(),
		Consolidation: DefaultConsolidationConfig(),
		Redis:         DefaultRedisConfig(),
		Persistence:   DefaultPersistenceConfig(),
		Log:           DefaultLogConfig(),
	}
}

// DefaultWorkingConfig returns the default working memory configuration.
// The capacity of seven follows the classic short-term memory span.
func DefaultWorkingConfig() WorkingConfig {
	return WorkingConfig{
		Capacity: 7,
		Policy:   "fifo",
	}
}

// DefaultContextConfig returns the default assembly configuration.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		BudgetTokens: 2000,
		Strategy:     "fifo",
		Model:        "",
	}
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ExactMaxSize:        1000,
		SimilarityThreshold: 0.7,
	}
}

// DefaultConsolidationConfig returns the default consolidation configuration.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
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

// DefaultRedisConfig returns the default Redis configuration, disabled.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		TTL:      time.Hour,
	}
}

// DefaultPersistenceConfig returns the default persistence configuration,
// with snapshots disabled.
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		Backend: "none",
		Path:    "",
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}
