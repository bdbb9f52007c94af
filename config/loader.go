// Package config loads engine configuration with layered precedence:
// defaults, then a YAML file, then environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("memflow.yaml").
//	    WithEnvPrefix("MEMFLOW").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/memflow/types"
)

// Config is the complete engine configuration.
type Config struct {
	// Working configures the short-term buffer.
	Working WorkingConfig `yaml:"working" env:"WORKING"`

	// Context configures prompt assembly.
	Context ContextConfig `yaml:"context" env:"CONTEXT"`

	// Cache configures the response caches.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Consolidation configures the background consolidation passes.
	Consolidation ConsolidationConfig `yaml:"consolidation" env:"CONSOLIDATION"`

	// Redis configures the optional shared cache tier.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Persistence configures snapshot storage.
	Persistence PersistenceConfig `yaml:"persistence" env:"PERSISTENCE"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// WorkingConfig configures the working memory buffer.
type WorkingConfig struct {
	// Capacity is the maximum number of resident items.
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// Policy selects the eviction policy: fifo or lru.
	Policy string `yaml:"policy" env:"POLICY"`
}

// ContextConfig configures context window assembly.
type ContextConfig struct {
	// BudgetTokens is the default token budget per assembly.
	BudgetTokens int `yaml:"budget_tokens" env:"BUDGET_TOKENS"`
	// Strategy selects the default ordering: fifo, lru, or relevance.
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// Model, when set, selects a tiktoken encoding for token counting.
	// Empty uses the character heuristic.
	Model string `yaml:"model" env:"MODEL"`
}

// CacheConfig configures the exact and semantic caches.
type CacheConfig struct {
	// ExactMaxSize bounds the exact cache entry count.
	ExactMaxSize int `yaml:"exact_max_size" env:"EXACT_MAX_SIZE"`
	// SimilarityThreshold is the minimum Jaccard score for a semantic hit.
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
}

// ConsolidationConfig configures the consolidation passes.
type ConsolidationConfig struct {
	// ClusterThreshold is the minimum pairwise similarity for clustering.
	ClusterThreshold float64 `yaml:"cluster_threshold" env:"CLUSTER_THRESHOLD"`
	// MinClusterSize is the minimum cluster size that promotes a pattern.
	MinClusterSize int `yaml:"min_cluster_size" env:"MIN_CLUSTER_SIZE"`
	// ReinforceBoost is added to pattern strength on each reinforcement.
	ReinforceBoost float64 `yaml:"reinforce_boost" env:"REINFORCE_BOOST"`
	// PromoteAfterPasses promotes a pattern to the abstract tier after
	// this many consecutive reinforced passes.
	PromoteAfterPasses int `yaml:"promote_after_passes" env:"PROMOTE_AFTER_PASSES"`
	// DecayAfterPasses starts decaying a pattern after this many passes
	// without reinforcement.
	DecayAfterPasses int `yaml:"decay_after_passes" env:"DECAY_AFTER_PASSES"`
	// DecayFactor multiplies strength on each decaying pass.
	DecayFactor float64 `yaml:"decay_factor" env:"DECAY_FACTOR"`
	// ForgetThreshold is the strength below which stale memories are
	// permanently removed.
	ForgetThreshold float64 `yaml:"forget_threshold" env:"FORGET_THRESHOLD"`
	// StalenessWindow is the idle duration after which a memory counts
	// as stale.
	StalenessWindow time.Duration `yaml:"staleness_window" env:"STALENESS_WINDOW"`
}

// RedisConfig configures the optional Redis cache tier.
type RedisConfig struct {
	// Enabled turns the Redis tier on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password authenticates against the server. Empty disables auth.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB selects the Redis database number.
	DB int `yaml:"db" env:"DB"`
	// TTL is the expiry applied to cached responses.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// PersistenceConfig configures snapshot storage.
type PersistenceConfig struct {
	// Backend selects the snapshot store: none, file, or sqlite.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Path is the snapshot file or database path.
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format selects the encoder: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the MEMFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "MEMFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends an extra validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves configuration in precedence order: defaults, YAML file,
// environment variables. The result is validated before it is returned.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks struct fields recursively, applying values from
// PREFIX_FIELD environment variables named by env tags.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration at path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks every section for out-of-range values.
func (c *Config) Validate() error {
	if c.Working.Capacity < 1 {
		return types.NewError(types.ErrConfiguration, "working.capacity must be >= 1, got %d", c.Working.Capacity)
	}
	switch c.Working.Policy {
	case "fifo", "lru":
	default:
		return types.NewError(types.ErrConfiguration, "working.policy must be fifo or lru, got %q", c.Working.Policy)
	}

	if c.Context.BudgetTokens < 0 {
		return types.NewError(types.ErrConfiguration, "context.budget_tokens must be >= 0, got %d", c.Context.BudgetTokens)
	}
	switch c.Context.Strategy {
	case "fifo", "lru", "relevance":
	default:
		return types.NewError(types.ErrConfiguration, "context.strategy must be fifo, lru, or relevance, got %q", c.Context.Strategy)
	}

	if c.Cache.ExactMaxSize < 0 {
		return types.NewError(types.ErrConfiguration, "cache.exact_max_size must be >= 0, got %d", c.Cache.ExactMaxSize)
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return types.NewError(types.ErrConfiguration, "cache.similarity_threshold must be in [0, 1], got %v", c.Cache.SimilarityThreshold)
	}

	cc := c.Consolidation
	if cc.ClusterThreshold < 0 || cc.ClusterThreshold > 1 {
		return types.NewError(types.ErrConfiguration, "consolidation.cluster_threshold must be in [0, 1], got %v", cc.ClusterThreshold)
	}
	if cc.MinClusterSize < 1 {
		return types.NewError(types.ErrConfiguration, "consolidation.min_cluster_size must be >= 1, got %d", cc.MinClusterSize)
	}
	if cc.DecayFactor <= 0 || cc.DecayFactor >= 1 {
		return types.NewError(types.ErrConfiguration, "consolidation.decay_factor must be in (0, 1), got %v", cc.DecayFactor)
	}
	if cc.ForgetThreshold < 0 || cc.ForgetThreshold > 1 {
		return types.NewError(types.ErrConfiguration, "consolidation.forget_threshold must be in [0, 1], got %v", cc.ForgetThreshold)
	}
	if cc.StalenessWindow <= 0 {
		return types.NewError(types.ErrConfiguration, "consolidation.staleness_window must be > 0, got %v", cc.StalenessWindow)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return types.NewError(types.ErrConfiguration, "redis.addr is required when redis is enabled")
		}
		if c.Redis.TTL <= 0 {
			return types.NewError(types.ErrConfiguration, "redis.ttl must be > 0 when redis is enabled, got %v", c.Redis.TTL)
		}
	}

	switch c.Persistence.Backend {
	case "", "none", "file", "sqlite":
	default:
		return types.NewError(types.ErrConfiguration, "persistence.backend must be none, file, or sqlite, got %q", c.Persistence.Backend)
	}
	if (c.Persistence.Backend == "file" || c.Persistence.Backend == "sqlite") && c.Persistence.Path == "" {
		return types.NewError(types.ErrConfiguration, "persistence.path is required for backend %q", c.Persistence.Backend)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return types.NewError(types.ErrConfiguration, "log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	return nil
}
