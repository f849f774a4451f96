// Package redis implements cache.Cache on top of go-redis.
package redis

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradesense/tradesense-go/cache"
	"github.com/tradesense/tradesense-go/cache/internal/tracking"
)

// Client implements the cache.Cache interface using Redis as the backend.
type Client struct {
	client    *redis.Client
	config    *Config
	namespace  string
	closed     atomic.Bool
	unregister func()
}

var _ cache.Cache = (*Client)(nil)

// NewClient validates cfg, connects and pings the server.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Address(),
		Password:        cfg.Password,
		DB:              cfg.Database,
		PoolSize:        cfg.PoolSize,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, cache.NewConnectionError("ping", cfg.Address(), err)
	}

	c := &Client{
		client:    client,
		config:    cfg,
		namespace: strconv.Itoa(cfg.Database),
	}
	c.unregister = tracking.RegisterPoolMetrics(c.poolStats, c.namespace)
	return c, nil
}

// Get retrieves a value from the cache.
// Returns cache.ErrNotFound if the key doesn't exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, cache.ErrClosed
	}

	start := time.Now()
	result, err := c.client.Get(ctx, key).Bytes()
	duration := time.Since(start)

	if errors.Is(err, redis.Nil) {
		tracking.RecordCacheOperation(ctx, tracking.OpGet, duration, false, nil, c.namespace)
		return nil, cache.ErrNotFound
	}
	tracking.RecordCacheOperation(ctx, tracking.OpGet, duration, err == nil, err, c.namespace)

	if err != nil {
		return nil, cache.NewOperationError("get", key, err)
	}
	return result, nil
}

// Set stores a value in the cache with the specified TTL.
// TTL of 0 means no expiration.
// Returns cache.ErrInvalidTTL if TTL is negative.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}

	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	tracking.RecordCacheOperation(ctx, tracking.OpSet, time.Since(start), false, err, c.namespace)

	if err != nil {
		return cache.NewOperationError("set", key, err)
	}
	return nil
}

// Delete removes a key from the cache.
// Does not return error if key doesn't exist.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Del(ctx, key).Err()
	tracking.RecordCacheOperation(ctx, tracking.OpDelete, time.Since(start), false, err, c.namespace)

	if err != nil {
		return cache.NewOperationError("delete", key, err)
	}
	return nil
}

// Health checks the connection with PING.
func (c *Client) Health(ctx context.Context) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	tracking.RecordCacheOperation(ctx, tracking.OpHealth, time.Since(start), false, err, c.namespace)

	if err != nil {
		return cache.NewConnectionError("ping", c.config.Address(), err)
	}
	return nil
}

// Stats returns connection pool statistics.
func (c *Client) Stats() (map[string]any, error) {
	if c.closed.Load() {
		return nil, cache.ErrClosed
	}

	poolStats := c.client.PoolStats()
	return map[string]any{
		"address":          c.config.Address(),
		"database":         c.config.Database,
		"pool_hits":        poolStats.Hits,
		"pool_misses":      poolStats.Misses,
		"pool_timeouts":    poolStats.Timeouts,
		"pool_total_conns": poolStats.TotalConns,
		"pool_idle_conns":  poolStats.IdleConns,
		"pool_stale_conns": poolStats.StaleConns,
	}, nil
}

func (c *Client) poolStats() tracking.PoolStats {
	stats := c.client.PoolStats()
	return tracking.PoolStats{
		TotalConns: int64(stats.TotalConns),
		IdleConns:  int64(stats.IdleConns),
		Timeouts:   int64(stats.Timeouts),
	}
}

// Close closes the Redis client. A second call returns cache.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	if c.unregister != nil {
		c.unregister()
	}
	return c.client.Close()
}
