// Package trace carries the per-call request id through context so the REST
// client and the logger can correlate an original request with its replay.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	traceIDKey contextKey = "trace_id"

	// HeaderXRequestID is the header used to propagate the request id
	HeaderXRequestID = "X-Request-ID"
)

// WithTraceID adds a request id to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// IDFromContext returns the request id from context if present
func IDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		return traceID, true
	}
	return "", false
}

// EnsureTraceID returns the request id in ctx or a freshly generated one
func EnsureTraceID(ctx context.Context) string {
	if traceID, ok := IDFromContext(ctx); ok {
		return traceID
	}
	return NewID()
}

// NewID generates a new random request id
func NewID() string {
	return uuid.New().String()
}
