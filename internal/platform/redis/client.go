package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"varreg/internal/platform/config"
	"varreg/pkg/sentinel"
)

// Client wraps go-redis so callers depend on one constructor and a health
// probe instead of raw options handling.
type Client struct {
	*redis.Client
}

// New dials Redis from the given config. An empty URL returns (nil, nil):
// Redis is optional and jobs fall back to in-memory state when unset.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether the connection is usable.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
