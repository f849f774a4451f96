// Package cache provides a small key/value cache abstraction used to share
// session state between processes. The Redis implementation lives in
// cache/redis; cache/testing offers an in-memory mock.
package cache

import (
	"context"
	"time"
)

// Cache defines the key/value operations the client relies on.
// All implementations must be thread-safe and context-aware.
//
// Example usage:
//
//	data, err := cache.Marshal(creds)
//	err = c.Set(ctx, "tradesense:session", data, 24*time.Hour)
//	raw, err := c.Get(ctx, "tradesense:session")
type Cache interface {
	// Get retrieves a value from the cache by key.
	// Returns ErrNotFound if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the specified TTL.
	// If ttl is 0, the value is stored without expiration.
	// Overwrites existing values.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error

	// Stats returns implementation specific statistics.
	Stats() (map[string]any, error)

	// Close releases resources. The cache must not be used afterwards.
	Close() error
}
