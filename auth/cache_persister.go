package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradesense/tradesense-go/cache"
)

// DefaultCacheKey is the key CachePersister uses when none is configured
const DefaultCacheKey = "tradesense:session"

// CachePersister keeps CBOR-encoded credentials under one key of a
// cache.Cache, typically Redis shared by several processes of the same user.
type CachePersister struct {
	cache cache.Cache
	key   string
	ttl   time.Duration
}

// NewCachePersister creates a persister; a zero ttl stores without expiry
func NewCachePersister(c cache.Cache, key string, ttl time.Duration) *CachePersister {
	if key == "" {
		key = DefaultCacheKey
	}
	return &CachePersister{cache: c, key: key, ttl: ttl}
}

// Load reads credentials from the cache
func (p *CachePersister) Load(ctx context.Context) (Credentials, error) {
	data, err := p.cache.Get(ctx, p.key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}

	creds, err := cache.Unmarshal[Credentials](data)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode cached credentials: %w", err)
	}
	if creds.IsZero() {
		return Credentials{}, ErrNoCredentials
	}
	return creds, nil
}

// Save stores creds under the configured key
func (p *CachePersister) Save(ctx context.Context, creds Credentials) error {
	data, err := cache.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := p.cache.Set(ctx, p.key, data, p.ttl); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Delete removes the key
func (p *CachePersister) Delete(ctx context.Context) error {
	if err := p.cache.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
