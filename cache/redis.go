package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// ErrCacheMiss is returned by RedisCache.Get when no entry matches.
var ErrCacheMiss = errors.New("cache miss")

// RedisCacheConfig configures a RedisCache.
type RedisCacheConfig struct {
	// TTL is the entry lifetime. Must be > 0.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// Prefix namespaces keys in a shared Redis. Defaults to
	// "memflow:cache:".
	Prefix string `json:"prefix" yaml:"prefix"`

	// Metrics, when set, receives hit/miss observations.
	Metrics *Metrics `json:"-" yaml:"-"`
}

// redisEntry is the stored JSON envelope.
type redisEntry struct {
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisCache is an exact-match response cache on Redis, for deployments
// that share cached generations across several engine processes. Eviction
// is delegated to Redis TTLs rather than scanned locally.
type RedisCache struct {
	client *redis.Client
	cfg    RedisCacheConfig
	logger *zap.Logger
}

// NewRedisCache creates a Redis-backed cache over an existing client.
func NewRedisCache(client *redis.Client, cfg RedisCacheConfig, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		return nil, types.NewError(types.ErrConfiguration, "redis cache requires a client")
	}
	if cfg.TTL <= 0 {
		return nil, types.NewError(types.ErrConfiguration, "redis cache TTL must be > 0, got %v", cfg.TTL)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "memflow:cache:"
	}
	return &RedisCache{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "redis_cache")),
	}, nil
}

// Get returns the cached response for query or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, query string) (string, error) {
	data, err := c.client.Get(ctx, c.redisKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.cfg.Metrics.observeMiss("redis")
		return "", ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("redis get failed", zap.Error(err))
		return "", err
	}

	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt entry behaves like a miss rather than poisoning reads.
		c.logger.Warn("redis entry corrupt, treating as miss", zap.Error(err))
		c.cfg.Metrics.observeMiss("redis")
		return "", ErrCacheMiss
	}

	c.cfg.Metrics.observeHit("redis")
	return entry.Response, nil
}

// Set stores the response for query under the configured TTL.
func (c *RedisCache) Set(ctx context.Context, query, response string) error {
	data, err := json.Marshal(redisEntry{Response: response, CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.redisKey(query), data, c.cfg.TTL).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.Error(err))
		return err
	}
	return nil
}

// Delete removes the entry for query.
func (c *RedisCache) Delete(ctx context.Context, query string) error {
	return c.client.Del(ctx, c.redisKey(query)).Err()
}

func (c *RedisCache) redisKey(query string) string {
	return c.cfg.Prefix + Key(query)
}
