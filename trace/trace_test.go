package trace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWithTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "req-1")

	id, ok := IDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
	}{
		{name: "empty context", ctx: context.Background()},
		{name: "empty id", ctx: WithTraceID(context.Background(), "")},
		{name: "wrong type", ctx: context.WithValue(context.Background(), traceIDKey, 42)},
		{name: "nil context", ctx: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := IDFromContext(tt.ctx)
			assert.False(t, ok)
			assert.Empty(t, id)
		})
	}
}

func TestEnsureTraceID(t *testing.T) {
	t.Run("keeps existing", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "existing")
		assert.Equal(t, "existing", EnsureTraceID(ctx))
	})

	t.Run("generates uuid", func(t *testing.T) {
		id := EnsureTraceID(context.Background())
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	})

	t.Run("generated ids differ", func(t *testing.T) {
		assert.NotEqual(t, NewID(), NewID())
	})
}
