package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient configures the Redis client backing codes, lockouts, rate limits and
// idempotent replays, and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, backoff.Permanent(fmt.Errorf("redis url is required"))
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse redis url: %w", err))
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	// Auth requests fail fast rather than queue behind a slow cache.
	opt.ReadTimeout = 2 * time.Second
	opt.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
