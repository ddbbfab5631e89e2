package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements ICache using Redis as backend with a default TTL.
// It lets every calculator replica see outcomes computed by the others.
type RedisCache struct {
	cli       *redis.Client
	noCache   bool
	ttl       time.Duration
	keyPrefix string
}

const defaultKeyPrefix = "calcbridge:cache:"

// defaultOpTimeout is the default timeout for Redis cache operations.
const defaultOpTimeout = 5 * time.Second

// NewRedisCache creates an ICache with custom ttl and prefix.
// If cli is nil, falls back to in-memory cache to remain functional.
func NewRedisCache(cli *redis.Client, noCache bool, ttl time.Duration, prefix string) ICache {
	if cli == nil {
		return NewMemCache(noCache, ttl)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{cli: cli, noCache: noCache, ttl: ttl, keyPrefix: prefix}
}

func (c *RedisCache) key(k string) string { return c.keyPrefix + k }

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultOpTimeout)
}

// Store uses SET NX so the first outcome recorded for a key wins.
func (c *RedisCache) Store(ctx context.Context, key string, data string) error {
	if c.noCache {
		return nil
	}
	ctx, cancel := opContext(ctx)
	defer cancel()
	return c.cli.SetNX(ctx, c.key(key), data, c.ttl).Err()
}

func (c *RedisCache) Load(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()
	val, err := c.cli.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Exists(ctx context.Context, key string) bool {
	ctx, cancel := opContext(ctx)
	defer cancel()
	n, err := c.cli.Exists(ctx, c.key(key)).Result()
	return err == nil && n == 1
}

func (c *RedisCache) IsCacheDisabled() bool { return c.noCache }
