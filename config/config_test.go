package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://api.tradesense.test"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "tradesense", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)

	assert.Equal(t, "http://localhost:5000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 0, cfg.API.Retries)
	assert.Equal(t, 100*time.Millisecond, cfg.API.RetryDelay)

	assert.Equal(t, "/api/v1/auth/refresh", cfg.Auth.RefreshPath)
	assert.Equal(t, 10*time.Second, cfg.Auth.RefreshTimeout)

	assert.Equal(t, SessionFile, cfg.Session.Store)
	assert.Equal(t, "tradesense:session", cfg.Session.Key)
	assert.Equal(t, 720*time.Hour, cfg.Session.TTL)

	assert.Equal(t, "localhost", cfg.Cache.Redis.Host)
	assert.Equal(t, 6379, cfg.Cache.Redis.Port)
	assert.Equal(t, 10, cfg.Cache.Redis.PoolSize)
	assert.Equal(t, 512*time.Millisecond, cfg.Cache.Redis.MaxRetryBackoff)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
	assert.False(t, cfg.Observability.Enabled)
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, DefaultFile, `
app:
  env: staging
api:
  baseurl: https://yaml.tradesense.test
  timeout: 5s
log:
  level: debug
`)
	writeFile(t, dir, "config.staging.yaml", `
api:
  timeout: 7s
  retries: 2
`)
	t.Setenv("TRADESENSE_API_BASEURL", testBaseURL)
	t.Setenv("TRADESENSE_CACHE_REDIS_POOLSIZE", "25")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Env)
	assert.Equal(t, testBaseURL, cfg.API.BaseURL, "env beats yaml")
	assert.Equal(t, 7*time.Second, cfg.API.Timeout, "env yaml beats base yaml")
	assert.Equal(t, 2, cfg.API.Retries)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 25, cfg.Cache.Redis.PoolSize)
}

func TestLoadEnvSelectsEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.production.yaml", "api:\n  baseurl: "+testBaseURL+"\n")
	t.Setenv("TRADESENSE_APP_ENV", EnvProduction)

	cfg, err := LoadFile(filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.App.Env)
	assert.Equal(t, testBaseURL, cfg.API.BaseURL)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), DefaultFile, "api: [unclosed")

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("TRADESENSE_SESSION_STORE", "floppy")

	_, err := LoadFile(filepath.Join(t.TempDir(), DefaultFile))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "session.store", cfgErr.Field)
	assert.Equal(t, "invalid", cfgErr.Category)
}

func TestGetters(t *testing.T) {
	t.Setenv("TRADESENSE_CUSTOM_GREETING", "hello")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)

	assert.Equal(t, "hello", cfg.GetString("custom.greeting"))
	assert.Equal(t, "fallback", cfg.GetString("custom.missing", "fallback"))
	assert.Equal(t, 10*time.Second, cfg.GetDuration("auth.refreshtimeout"))
	assert.Equal(t, time.Minute, cfg.GetDuration("custom.missing", time.Minute))
	assert.True(t, cfg.Exists("api.baseurl"))
	assert.False(t, cfg.Exists("custom.missing"))
	assert.Contains(t, cfg.All(), "api.baseurl")

	_, err = cfg.GetRequiredString("custom.missing")
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "missing", cfgErr.Category)
	assert.Contains(t, cfgErr.Action, "TRADESENSE_CUSTOM_MISSING")

	var auth AuthConfig
	require.NoError(t, cfg.Unmarshal("auth", &auth))
	assert.Equal(t, "/api/v1/auth/refresh", auth.RefreshPath)
}

func TestGettersWithoutKoanf(t *testing.T) {
	cfg := &Config{}
	assert.Empty(t, cfg.GetString("x"))
	assert.False(t, cfg.Exists("x"))
	assert.Empty(t, cfg.All())
	assert.Error(t, cfg.Unmarshal("x", &struct{}{}))
}

func TestSessionFilePath(t *testing.T) {
	cfg := &Config{Session: SessionConfig{File: "/tmp/creds.json"}}
	path, err := cfg.SessionFilePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/creds.json", path)

	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("HOME", "/home/trader")
	path, err = (&Config{}).SessionFilePath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join("tradesense", "session.json")), path)
}
