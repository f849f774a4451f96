package cache

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionSnapshot struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	original := sessionSnapshot{
		AccessToken:  "A1",
		RefreshToken: "R1",
		SavedAt:      time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
		Scopes:       []string{"trades:read", "trades:write"},
	}

	data, err := Marshal(original)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	result, err := Unmarshal[sessionSnapshot](data)
	require.NoError(t, err)
	assert.Equal(t, original.AccessToken, result.AccessToken)
	assert.Equal(t, original.RefreshToken, result.RefreshToken)
	assert.Equal(t, original.Scopes, result.Scopes)
	assert.True(t, original.SavedAt.Equal(result.SavedAt))
}

func TestMarshalUsesJSONFieldNames(t *testing.T) {
	data, err := Marshal(sessionSnapshot{AccessToken: "A1"})
	require.NoError(t, err)

	assert.True(t, bytes.Contains(data, []byte("access_token")))

	asMap, err := Unmarshal[map[string]any](data)
	require.NoError(t, err)
	assert.Equal(t, "A1", asMap["access_token"])
	assert.NotContains(t, asMap, "scopes")
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]string{"b": "2", "a": "1", "c": "3"}

	first, err := Marshal(value)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	_, err := Unmarshal[sessionSnapshot]([]byte{0xff, 0x00, 0x13})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cbor unmarshal failed")
}

func TestUnmarshalTypeMismatch(t *testing.T) {
	data, err := Marshal([]int{1, 2, 3})
	require.NoError(t, err)

	_, err = Unmarshal[sessionSnapshot](data)
	assert.Error(t, err)
}
