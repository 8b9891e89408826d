// Package cache wraps redis for two jobs: short-lived list-page caching with
// pattern invalidation, and the external converted-targets counter.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordanlanch/leadconsole/pkg/domain"
)

// PageTTL bounds how stale a cached list page may get; every mutation also
// invalidates eagerly.
const PageTTL = 5 * time.Minute

// Client holds the redis client.
type Client struct {
	Redis *redis.Client
}

// NewClient creates a redis client and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}

	return &Client{Redis: client}, nil
}

// Close closes the redis connection.
func (c *Client) Close() error {
	return c.Redis.Close()
}

// Set sets a key-value pair with expiration.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.Redis.Set(ctx, key, value, expiration).Err()
}

// Get gets a value by key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.Redis.Get(ctx, key).Result()
}

// Delete deletes keys.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.Redis.Del(ctx, keys...).Err()
}

// DeletePattern deletes all keys matching a pattern. Uses SCAN rather than
// KEYS so large keyspaces do not block the server.
func (c *Client) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		var keys []string
		var err error
		keys, cursor, err = c.Redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.Redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}

func pageKey(pipeline, stateKey, cursor string) string {
	return fmt.Sprintf("leads:%s:page:%s:%s", pipeline, stateKey, cursor)
}

// CachePage stores one list page under the pipeline/filter/cursor triple.
func (c *Client) CachePage(ctx context.Context, pipeline, stateKey, cursor string, page *domain.Page) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	return c.Set(ctx, pageKey(pipeline, stateKey, cursor), raw, PageTTL)
}

// GetPage returns a cached list page, or (nil, nil) on a miss.
func (c *Client) GetPage(ctx context.Context, pipeline, stateKey, cursor string) (*domain.Page, error) {
	raw, err := c.Get(ctx, pageKey(pipeline, stateKey, cursor))
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached page: %w", err)
	}
	var page domain.Page
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return nil, fmt.Errorf("failed to decode cached page: %w", err)
	}
	return &page, nil
}

// InvalidateLists drops every cached list page for a pipeline. Called after
// any mutation so operators never see a stale owner or status.
func (c *Client) InvalidateLists(ctx context.Context, pipeline string) error {
	return c.DeletePattern(ctx, fmt.Sprintf("leads:%s:page:*", pipeline))
}

func targetsKey(pipeline string) string {
	return fmt.Sprintf("targets:%s:converted", pipeline)
}

// IncrTargets bumps the converted-leads counter for a pipeline.
func (c *Client) IncrTargets(ctx context.Context, pipeline string) error {
	if err := c.Redis.Incr(ctx, targetsKey(pipeline)).Err(); err != nil {
		return fmt.Errorf("failed to increment targets: %w", err)
	}
	return nil
}

// DecrTargets reverts one conversion. The counter never goes below zero.
func (c *Client) DecrTargets(ctx context.Context, pipeline string) error {
	val, err := c.Redis.Decr(ctx, targetsKey(pipeline)).Result()
	if err != nil {
		return fmt.Errorf("failed to decrement targets: %w", err)
	}
	if val < 0 {
		return c.Redis.Set(ctx, targetsKey(pipeline), 0, 0).Err()
	}
	return nil
}

// Targets reads the current converted-leads count for a pipeline.
func (c *Client) Targets(ctx context.Context, pipeline string) (int64, error) {
	val, err := c.Redis.Get(ctx, targetsKey(pipeline)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read targets: %w", err)
	}
	return val, nil
}
