package testing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesense/tradesense-go/cache"
)

const testKey = "tradesense:session"

func TestMockCacheGetSetDelete(t *testing.T) {
	ctx := context.Background()
	mock := NewMockCache()

	AssertCacheMiss(t, mock, testKey)

	require.NoError(t, mock.Set(ctx, testKey, []byte("payload"), 0))
	AssertCacheHit(t, mock, testKey)
	AssertKeyExists(t, mock, testKey)

	got, err := mock.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, mock.Delete(ctx, testKey))
	require.NoError(t, mock.Delete(ctx, testKey))
	AssertKeyNotExists(t, mock, testKey)

	AssertOperationCount(t, mock, OpSet, 1)
	AssertOperationCount(t, mock, OpDelete, 2)
}

func TestMockCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mock := NewMockCache()

	value := []byte("abc")
	require.NoError(t, mock.Set(ctx, testKey, value, 0))
	value[0] = 'x'

	got, err := mock.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMockCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock := NewMockCache().WithClock(func() time.Time { return now })

	require.NoError(t, mock.Set(ctx, testKey, []byte("v"), time.Minute))
	AssertCacheHit(t, mock, testKey)

	now = now.Add(time.Minute)
	AssertCacheMiss(t, mock, testKey)
	AssertKeyNotExists(t, mock, testKey)

	assert.ErrorIs(t, mock.Set(ctx, testKey, []byte("v"), -time.Second), cache.ErrInvalidTTL)
}

func TestMockCacheFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	mock := NewMockCache().
		WithGetFailure(boom).
		WithSetFailure(boom).
		WithDeleteFailure(boom).
		WithHealthFailure(boom)

	_, err := mock.Get(ctx, testKey)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, mock.Set(ctx, testKey, nil, 0), boom)
	assert.ErrorIs(t, mock.Delete(ctx, testKey), boom)
	assert.ErrorIs(t, mock.Health(ctx), boom)
}

func TestMockCacheDelayHonorsContext(t *testing.T) {
	mock := NewMockCache().WithDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mock.Get(ctx, testKey)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockCacheClose(t *testing.T) {
	ctx := context.Background()
	mock := NewMockCache()
	require.NoError(t, mock.Set(ctx, testKey, []byte("v"), 0))

	require.NoError(t, mock.Close())
	assert.True(t, mock.IsClosed())
	assert.ErrorIs(t, mock.Close(), cache.ErrClosed)

	_, err := mock.Get(ctx, testKey)
	assert.ErrorIs(t, err, cache.ErrClosed)
	_, err = mock.Stats()
	assert.ErrorIs(t, err, cache.ErrClosed)
	assert.Empty(t, mock.Keys())
}

func TestMockCacheStatsAndDump(t *testing.T) {
	ctx := context.Background()
	mock := NewMockCache()
	assert.Contains(t, mock.Dump(), "(empty)")

	require.NoError(t, mock.Set(ctx, "b", []byte("1"), 0))
	require.NoError(t, mock.Set(ctx, "a", []byte("22"), 0))

	stats, err := mock.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats["entry_count"])
	assert.Equal(t, int64(2), stats["set_calls"])

	assert.Equal(t, []string{"a", "b"}, mock.Keys())
	assert.Contains(t, mock.Dump(), "a: 2 bytes")
}

func TestMockCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	mock := NewMockCache()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mock.Set(ctx, testKey, []byte("v"), 0)
			_, _ = mock.Get(ctx, testKey)
		}()
	}
	wg.Wait()

	AssertOperationCount(t, mock, OpSet, 20)
	AssertOperationCount(t, mock, OpGet, 20)
}
