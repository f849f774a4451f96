// Package testing provides an in-memory cache.Cache for exercising session
// persistence without a Redis server.
//
// MockCache records how often each operation ran and can be told to fail or
// stall:
//
//	mock := testing.NewMockCache().WithSetFailure(errors.New("down"))
//	persister := auth.NewCachePersister(mock, "", 0)
//
// Tests that need real Redis semantics (TTL expiry, wire errors) use
// miniredis with the cache/redis client instead.
package testing
