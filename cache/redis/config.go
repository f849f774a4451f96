package redis

import (
	"fmt"
	"time"

	"github.com/tradesense/tradesense-go/cache"
)

// Config holds connection settings for the Redis-backed session cache.
type Config struct {
	// Host is the Redis server hostname or IP address.
	Host string `koanf:"host" json:"host" yaml:"host" mapstructure:"host"`

	// Port is the Redis server port (default: 6379).
	Port int `koanf:"port" json:"port" yaml:"port" mapstructure:"port"`

	// Password for Redis authentication (optional).
	// Should be provided via TRADESENSE_CACHE_REDIS_PASSWORD.
	Password string `koanf:"password" json:"password" yaml:"password" mapstructure:"password"`

	// Database number to use (default: 0).
	// Redis supports databases 0-15 by default.
	Database int `koanf:"database" json:"database" yaml:"database" mapstructure:"database"`

	// PoolSize is the maximum number of socket connections (default: 10).
	// Higher values allow more concurrent operations but consume more resources.
	PoolSize int `koanf:"poolsize" json:"poolsize" yaml:"poolsize" mapstructure:"poolsize"`

	// DialTimeout is the timeout for establishing new connections (default: 5s).
	DialTimeout time.Duration `koanf:"dialtimeout" json:"dialtimeout" yaml:"dialtimeout" mapstructure:"dialtimeout"`

	// ReadTimeout is the timeout for socket reads (default: 3s).
	// -1 disables timeout.
	ReadTimeout time.Duration `koanf:"readtimeout" json:"readtimeout" yaml:"readtimeout" mapstructure:"readtimeout"`

	// WriteTimeout is the timeout for socket writes (default: 3s).
	// -1 disables timeout.
	WriteTimeout time.Duration `koanf:"writetimeout" json:"writetimeout" yaml:"writetimeout" mapstructure:"writetimeout"`

	// MaxRetries is the maximum number of retries before giving up (default: 3).
	// -1 disables retries.
	MaxRetries int `koanf:"maxretries" json:"maxretries" yaml:"maxretries" mapstructure:"maxretries"`

	// MinRetryBackoff is the minimum backoff between retries (default: 8ms).
	MinRetryBackoff time.Duration `koanf:"minretrybackoff" json:"minretrybackoff" yaml:"minretrybackoff" mapstructure:"minretrybackoff"`

	// MaxRetryBackoff is the maximum backoff between retries (default: 512ms).
	MaxRetryBackoff time.Duration `koanf:"maxretrybackoff" json:"maxretrybackoff" yaml:"maxretrybackoff" mapstructure:"maxretrybackoff"`
}

// Validate performs fail-fast validation of Redis configuration.
// Returns error if configuration is invalid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return cache.NewConfigError("redis.host", "host is required", nil)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return cache.NewConfigError("redis.port", fmt.Sprintf("invalid port: %d", c.Port), nil)
	}

	if c.Database < 0 || c.Database > 15 {
		return cache.NewConfigError("redis.database", fmt.Sprintf("invalid database number: %d (must be 0-15)", c.Database), nil)
	}

	if c.PoolSize <= 0 {
		return cache.NewConfigError("redis.poolsize", fmt.Sprintf("invalid pool size: %d (must be > 0)", c.PoolSize), nil)
	}

	if c.DialTimeout < 0 {
		return cache.NewConfigError("redis.dialtimeout", "dial timeout cannot be negative", nil)
	}

	if c.ReadTimeout < -1 {
		return cache.NewConfigError("redis.readtimeout", "read timeout cannot be less than -1", nil)
	}

	if c.WriteTimeout < -1 {
		return cache.NewConfigError("redis.writetimeout", "write timeout cannot be less than -1", nil)
	}

	return nil
}

// DefaultConfig returns the settings used when only a host is configured.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            6379,
		PoolSize:        10,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
}

// Address returns the Redis server address in "host:port" format.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
