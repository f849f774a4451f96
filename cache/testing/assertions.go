package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradesense/tradesense-go/cache"
)

// AssertCacheHit asserts that key is readable from c.
func AssertCacheHit(t *testing.T, c cache.Cache, key string) {
	t.Helper()
	_, err := c.Get(context.Background(), key)
	assert.NoError(t, err, "expected cache hit for key %q", key)
}

// AssertCacheMiss asserts that reading key from c yields cache.ErrNotFound.
func AssertCacheMiss(t *testing.T, c cache.Cache, key string) {
	t.Helper()
	_, err := c.Get(context.Background(), key)
	assert.True(t, errors.Is(err, cache.ErrNotFound), "expected cache miss for key %q, got %v", key, err)
}

// AssertOperationCount asserts the number of calls recorded for op.
func AssertOperationCount(t *testing.T, mock *MockCache, op string, expected int64) {
	t.Helper()
	assert.Equal(t, expected, mock.OperationCount(op), "unexpected %s call count\n%s", op, mock.Dump())
}

// AssertKeyExists asserts that key is stored in mock.
func AssertKeyExists(t *testing.T, mock *MockCache, key string) {
	t.Helper()
	assert.True(t, mock.Has(key), "expected key %q\n%s", key, mock.Dump())
}

// AssertKeyNotExists asserts that key is absent from mock.
func AssertKeyNotExists(t *testing.T, mock *MockCache, key string) {
	t.Helper()
	assert.False(t, mock.Has(key), "unexpected key %q\n%s", key, mock.Dump())
}
