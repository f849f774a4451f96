package config

import (
	"fmt"
	"time"
)

// GetString returns a string value for key, or the optional default
func (c *Config) GetString(key string, defaultVal ...string) string {
	if c.k == nil || !c.k.Exists(key) {
		return optionalDefault("", defaultVal...)
	}
	return c.k.String(key)
}

// GetDuration returns a duration value for key, or the optional default
func (c *Config) GetDuration(key string, defaultVal ...time.Duration) time.Duration {
	if c.k == nil || !c.k.Exists(key) {
		return optionalDefault(time.Duration(0), defaultVal...)
	}
	return c.k.Duration(key)
}

// GetRequiredString returns the value for key or a *ConfigError
func (c *Config) GetRequiredString(key string) (string, error) {
	if c.k == nil || !c.k.Exists(key) || c.k.String(key) == "" {
		return "", NewMissingFieldError(key, envVarFor(key), key)
	}
	return c.k.String(key), nil
}

// Exists reports whether key was set by any source
func (c *Config) Exists(key string) bool {
	return c.k != nil && c.k.Exists(key)
}

// All returns the merged configuration as a flat map
func (c *Config) All() map[string]any {
	if c.k == nil {
		return map[string]any{}
	}
	return c.k.All()
}

// Unmarshal decodes the subtree at key into out
func (c *Config) Unmarshal(key string, out any) error {
	if c.k == nil {
		return fmt.Errorf("config not loaded")
	}
	return c.k.Unmarshal(key, out)
}

func optionalDefault[T any](zero T, overrides ...T) T {
	if len(overrides) > 0 {
		return overrides[0]
	}
	return zero
}
