package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ICache is a string key/value store with expiry.
type ICache interface {
	Store(ctx context.Context, key string, data string) error
	// Load returns ok=false for a missing or expired key.
	Load(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) bool
	IsCacheDisabled() bool
}

type CacheType string

var (
	CacheTypeRedis CacheType = "redis"
	CacheTypeMem   CacheType = "memory"
	CacheTypeNone  CacheType = "none"
)

const defaultTTL = 24 * time.Hour

// New builds a cache of the given type. A redis cache without a client falls back to memory.
func New(cacheType CacheType, cli *redis.Client, ttl time.Duration, prefix string) ICache {
	switch cacheType {
	case CacheTypeNone:
		return NewMemCache(true, ttl)
	case CacheTypeRedis:
		return NewRedisCache(cli, false, ttl, prefix)
	default:
		return NewMemCache(false, ttl)
	}
}
