// AngelaMos | 2026
// redis.go

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TatyOko28/refresh-system/internal/config"
)

// OpenRedis dials from a redis:// URL and fails fast when the server is
// not answering.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return client, nil
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Ping lets the cache double as a readiness dependency.
func (c *RedisCache) Ping(ctx context.Context) error {
	return pingRedis(ctx, c.client)
}

func (c *RedisCache) PoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}
