package auth

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	p := NewFilePersister(path)
	assert.Equal(t, path, p.Path())

	_, err := p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	creds := Credentials{AccessToken: testAccess1, RefreshToken: testRefresh1}
	require.NoError(t, p.Save(ctx, creds))

	loaded, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, loaded)

	require.NoError(t, p.Save(ctx, Credentials{AccessToken: testAccess2, RefreshToken: testRefresh2}))
	loaded, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testAccess2, loaded.AccessToken)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed into place")

	require.NoError(t, p.Delete(ctx))
	require.NoError(t, p.Delete(ctx))
	_, err = p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestFilePersisterPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, NewFilePersister(path).Save(context.Background(), Credentials{AccessToken: testAccess1}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFilePersisterLoadErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		_, err := NewFilePersister(path).Load(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("empty pair", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"","refresh_token":""}`), 0o600))

		_, err := NewFilePersister(path).Load(ctx)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})
}

func TestFilePersisterWithStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	first := NewMemoryStore(WithPersister(NewFilePersister(path)))
	first.SetTokens(testAccess1, testRefresh1)

	second := NewMemoryStore(WithPersister(NewFilePersister(path)))
	require.NoError(t, second.Restore(context.Background()))
	assert.Equal(t, first.Tokens(), second.Tokens())

	first.Clear()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
