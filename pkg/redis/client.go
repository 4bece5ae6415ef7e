// Package redis provides a thin wrapper around go-redis/v9 with connection
// pooling and the multi-key reads and transactional writes the snapshot
// store relies on.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// GetMany returns the values of keys in order. A missing key yields ok
// false for the whole read.
func (c *Client) GetMany(ctx context.Context, keys ...string) (values []string, ok bool, err error) {
	raw, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, false, err
	}
	values = make([]string, len(raw))
	for i, v := range raw {
		s, isString := v.(string)
		if !isString {
			return nil, false, nil
		}
		values[i] = s
	}
	return values, true, nil
}

// SetMany writes every pair inside one MULTI/EXEC so readers never observe
// a partial update.
func (c *Client) SetMany(ctx context.Context, pairs map[string]string, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range pairs {
			pipe.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return err
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
