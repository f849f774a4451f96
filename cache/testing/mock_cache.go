package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradesense/tradesense-go/cache"
)

// Operation names accepted by OperationCount.
const (
	OpGet    = "Get"
	OpSet    = "Set"
	OpDelete = "Delete"
	OpHealth = "Health"
	OpStats  = "Stats"
	OpClose  = "Close"
)

// MockCache is an in-memory cache.Cache with configurable failures and
// per-operation call counters. It is safe for concurrent use.
type MockCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	closed  atomic.Bool

	delay       time.Duration
	getError    error
	setError    error
	deleteError error
	healthError error

	calls sync.Map // operation name -> *atomic.Int64
	now   func() time.Time
}

type cacheEntry struct {
	value      []byte
	expiration time.Time // zero means no expiry
}

var _ cache.Cache = (*MockCache)(nil)

// NewMockCache creates an empty MockCache.
func NewMockCache() *MockCache {
	return &MockCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// WithDelay makes every context-aware operation wait before running.
func (m *MockCache) WithDelay(delay time.Duration) *MockCache {
	m.delay = delay
	return m
}

// WithGetFailure makes Get return err.
func (m *MockCache) WithGetFailure(err error) *MockCache {
	m.getError = err
	return m
}

// WithSetFailure makes Set return err.
func (m *MockCache) WithSetFailure(err error) *MockCache {
	m.setError = err
	return m
}

// WithDeleteFailure makes Delete return err.
func (m *MockCache) WithDeleteFailure(err error) *MockCache {
	m.deleteError = err
	return m
}

// WithHealthFailure makes Health return err.
func (m *MockCache) WithHealthFailure(err error) *MockCache {
	m.healthError = err
	return m
}

// WithClock replaces the time source used for TTL checks.
func (m *MockCache) WithClock(now func() time.Time) *MockCache {
	m.now = now
	return m
}

func (m *MockCache) begin(ctx context.Context, op string) error {
	m.counter(op).Add(1)

	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if m.closed.Load() {
		return cache.ErrClosed
	}
	return nil
}

func (m *MockCache) counter(op string) *atomic.Int64 {
	c, _ := m.calls.LoadOrStore(op, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// Get returns a copy of the stored value or cache.ErrNotFound.
func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.begin(ctx, OpGet); err != nil {
		return nil, err
	}
	if m.getError != nil {
		return nil, m.getError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if !entry.expiration.IsZero() && !m.now().Before(entry.expiration) {
		delete(m.entries, key)
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores value under key. A zero ttl never expires.
func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.begin(ctx, OpSet); err != nil {
		return err
	}
	if m.setError != nil {
		return m.setError
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiration = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are not an error.
func (m *MockCache) Delete(ctx context.Context, key string) error {
	if err := m.begin(ctx, OpDelete); err != nil {
		return err
	}
	if m.deleteError != nil {
		return m.deleteError
	}

	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Health reports the configured health error, if any.
func (m *MockCache) Health(ctx context.Context) error {
	if err := m.begin(ctx, OpHealth); err != nil {
		return err
	}
	return m.healthError
}

// Stats returns entry and call counts.
func (m *MockCache) Stats() (map[string]any, error) {
	m.counter(OpStats).Add(1)
	if m.closed.Load() {
		return nil, cache.ErrClosed
	}

	m.mu.Lock()
	count := len(m.entries)
	m.mu.Unlock()

	return map[string]any{
		"entry_count":  count,
		"get_calls":    m.OperationCount(OpGet),
		"set_calls":    m.OperationCount(OpSet),
		"delete_calls": m.OperationCount(OpDelete),
	}, nil
}

// Close marks the cache closed and drops its contents.
func (m *MockCache) Close() error {
	m.counter(OpClose).Add(1)
	if !m.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}

	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

// OperationCount returns how many times op was called.
func (m *MockCache) OperationCount(op string) int64 {
	return m.counter(op).Load()
}

// IsClosed reports whether Close has been called.
func (m *MockCache) IsClosed() bool {
	return m.closed.Load()
}

// Has reports whether key is stored, ignoring expiry.
func (m *MockCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (m *MockCache) Keys() []string {
	m.mu.Lock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Dump renders the contents for failure messages.
func (m *MockCache) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MockCache closed=%v\n", m.closed.Load())

	keys := m.Keys()
	if len(keys) == 0 {
		b.WriteString("  (empty)\n")
		return b.String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		entry := m.entries[k]
		fmt.Fprintf(&b, "  %s: %d bytes (expires: %v)\n", k, len(entry.value), entry.expiration)
	}
	return b.String()
}
