package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	for name, err := range map[string]error{
		"ErrNotFound":   ErrNotFound,
		"ErrClosed":     ErrClosed,
		"ErrInvalidTTL": ErrInvalidTTL,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "cache:")
		})
	}
}

func TestConfigError(t *testing.T) {
	t.Run("without underlying error", func(t *testing.T) {
		err := NewConfigError("redis.host", "host is required", nil)

		assert.Equal(t, "cache configuration error: redis.host: host is required", err.Error())
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("with underlying error", func(t *testing.T) {
		underlying := errors.New("invalid port number")
		err := NewConfigError("redis.port", "port must be between 1 and 65535", underlying)

		assert.Contains(t, err.Error(), "invalid port number")
		assert.ErrorIs(t, err, underlying)
	})
}

func TestConnectionError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := NewConnectionError("ping", "localhost:6379", underlying)

	assert.Equal(t, "cache connection error: ping failed for localhost:6379: connection refused", err.Error())
	assert.ErrorIs(t, err, underlying)

	var connErr *ConnectionError
	assert.ErrorAs(t, error(err), &connErr)
	assert.Equal(t, "ping", connErr.Op)
}

func TestOperationError(t *testing.T) {
	err := NewOperationError("get", "tradesense:session", ErrClosed)

	assert.Equal(t, `cache operation error: get failed for key "tradesense:session": cache: connection closed`, err.Error())
	assert.ErrorIs(t, err, ErrClosed)
}
