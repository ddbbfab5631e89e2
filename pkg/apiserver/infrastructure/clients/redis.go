package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"calcbridge/pkg/apiserver/config"
)

var (
	redisMu sync.Mutex
	rClient *redis.Client
)

// EnsureRedis returns a process-wide redis rClient built from cfg if not yet initialized.
// Subsequent calls reuse the same rClient instance; streams and the replay cache share it.
func EnsureRedis(cfg config.RedisConfig) (*redis.Client, error) {
	redisMu.Lock()
	defer redisMu.Unlock()
	if rClient != nil {
		return rClient, nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.UserName,
		Password: cfg.Password,
		DB:       int(cfg.DB),
		// XREADGROUP blocks server side; leave room for it.
		ReadTimeout: cfg.ReadBlock + 2*time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	rClient = cli
	return rClient, nil
}

// GetRedis returns the initialized redis rClient or nil if not initialized.
func GetRedis() *redis.Client {
	redisMu.Lock()
	defer redisMu.Unlock()
	return rClient
}

// CloseRedis closes the shared client. It is safe to call when no client exists.
func CloseRedis() error {
	redisMu.Lock()
	defer redisMu.Unlock()
	if rClient == nil {
		return nil
	}
	err := rClient.Close()
	rClient = nil
	return err
}
