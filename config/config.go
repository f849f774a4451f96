// Package config loads client settings from defaults, YAML files and
// TRADESENSE_ environment variables using koanf.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables read by Load
	EnvPrefix = "TRADESENSE_"

	// DefaultFile is the base YAML file looked up by Load
	DefaultFile = "config.yaml"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Load reads configuration with priority:
// 1. Environment variables (highest priority)
// 2. config.<env>.yaml
// 3. config.yaml
// 4. Default values (lowest priority)
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile is Load with an explicit base YAML file. The environment file
// is looked up next to it. Missing files are skipped.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadYAML(k, path); err != nil {
		return nil, err
	}

	// The env var may pick the environment file.
	appEnv := k.String("app.env")
	if v, ok := os.LookupEnv(EnvPrefix + "APP_ENV"); ok && v != "" {
		appEnv = v
	}
	if appEnv != "" {
		envFile := filepath.Join(filepath.Dir(path), fmt.Sprintf("config.%s.yaml", appEnv))
		if err := loadYAML(k, envFile); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey converts TRADESENSE_CACHE_REDIS_HOST to cache.redis.host
func envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
}

func loadYAML(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "tradesense",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"api.baseurl":    "http://localhost:5000",
		"api.timeout":    "30s",
		"api.retries":    0,
		"api.retrydelay": "100ms",

		"auth.refreshpath":    "/api/v1/auth/refresh",
		"auth.refreshtimeout": "10s",

		"session.store": SessionFile,
		"session.file":  "",
		"session.key":   "tradesense:session",
		"session.ttl":   "720h",

		"cache.redis.host":            "localhost",
		"cache.redis.port":            6379,
		"cache.redis.database":        0,
		"cache.redis.poolsize":        10,
		"cache.redis.dialtimeout":     "5s",
		"cache.redis.readtimeout":     "3s",
		"cache.redis.writetimeout":    "3s",
		"cache.redis.maxretries":      3,
		"cache.redis.minretrybackoff": "8ms",
		"cache.redis.maxretrybackoff": "512ms",

		"log.level":  "info",
		"log.pretty": false,

		"observability.enabled":  false,
		"observability.exporter": ExporterStdout,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// SessionFilePath returns the configured credentials file or the default
// location under the user config directory.
func (c *Config) SessionFilePath() (string, error) {
	if c.Session.File != "" {
		return c.Session.File, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", NewMissingFieldError("session.file", EnvPrefix+"SESSION_FILE", "session.file")
	}
	return filepath.Join(dir, "tradesense", "session.json"), nil
}
