package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Exporter kinds for observability.exporter
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// Validate checks every section and returns the first *ConfigError wrapped
// with its section name.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}
	if err := validateAPI(&cfg.API); err != nil {
		return fmt.Errorf("api config: %w", err)
	}
	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := validateSession(cfg); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := validateObservability(&cfg.Observability); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}
	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return NewMissingFieldError("app.name", envVarFor("app.name"), "app.name")
	}
	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return NewInvalidFieldError("app.env", fmt.Sprintf("invalid environment: %s", cfg.Env), validEnvs)
	}
	return nil
}

func validateAPI(cfg *APIConfig) error {
	if cfg.BaseURL == "" {
		return NewMissingFieldError("api.baseurl", envVarFor("api.baseurl"), "api.baseurl")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{
			Category: "invalid",
			Field:    "api.baseurl",
			Message:  fmt.Sprintf("not an http(s) url: %q", cfg.BaseURL),
			Details:  []string{"example: https://api.tradesense.example"},
		}
	}
	if cfg.Timeout <= 0 {
		return NewInvalidFieldError("api.timeout", "timeout must be positive", nil)
	}
	if cfg.Retries < 0 {
		return NewInvalidFieldError("api.retries", "retries cannot be negative", nil)
	}
	if cfg.RetryDelay < 0 {
		return NewInvalidFieldError("api.retrydelay", "retry delay cannot be negative", nil)
	}
	return nil
}

func validateAuth(cfg *AuthConfig) error {
	if !strings.HasPrefix(cfg.RefreshPath, "/") {
		return NewInvalidFieldError("auth.refreshpath", fmt.Sprintf("refresh path must start with '/': %q", cfg.RefreshPath), nil)
	}
	if cfg.RefreshTimeout <= 0 {
		return NewInvalidFieldError("auth.refreshtimeout", "refresh timeout must be positive", nil)
	}
	return nil
}

func validateSession(cfg *Config) error {
	stores := []string{SessionMemory, SessionFile, SessionRedis}
	if !slices.Contains(stores, cfg.Session.Store) {
		return NewInvalidFieldError("session.store", fmt.Sprintf("unknown session store: %s", cfg.Session.Store), stores)
	}
	if cfg.Session.TTL < 0 {
		return NewInvalidFieldError("session.ttl", "ttl cannot be negative", nil)
	}
	if cfg.Session.Store != SessionRedis {
		return nil
	}
	if cfg.Session.Key == "" {
		return NewMissingFieldError("session.key", envVarFor("session.key"), "session.key")
	}
	if err := cfg.Cache.Redis.Validate(); err != nil {
		return fmt.Errorf("cache.redis: %w", err)
	}
	return nil
}

func validateLog(cfg *LogConfig) error {
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Level)) {
		return NewInvalidFieldError("log.level", fmt.Sprintf("invalid log level: %s", cfg.Level), validLogLevels)
	}
	return nil
}

func validateObservability(cfg *ObservabilityConfig) error {
	if !cfg.Enabled {
		return nil
	}
	exporters := []string{ExporterStdout, ExporterNone}
	if !slices.Contains(exporters, cfg.Exporter) {
		return NewInvalidFieldError("observability.exporter", fmt.Sprintf("unknown exporter: %s", cfg.Exporter), exporters)
	}
	return nil
}
