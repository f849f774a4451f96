package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/tradesense/tradesense-go/cache/redis"
)

// Config is the full client configuration. The koanf instance it was loaded
// from stays attached for keys the struct does not model.
type Config struct {
	App           AppConfig           `koanf:"app" json:"app" yaml:"app" mapstructure:"app"`
	API           APIConfig           `koanf:"api" json:"api" yaml:"api" mapstructure:"api"`
	Auth          AuthConfig          `koanf:"auth" json:"auth" yaml:"auth" mapstructure:"auth"`
	Session       SessionConfig       `koanf:"session" json:"session" yaml:"session" mapstructure:"session"`
	Cache         CacheConfig         `koanf:"cache" json:"cache" yaml:"cache" mapstructure:"cache"`
	Log           LogConfig           `koanf:"log" json:"log" yaml:"log" mapstructure:"log"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability" mapstructure:"observability"`

	k *koanf.Koanf `json:"-" yaml:"-" mapstructure:"-"`
}

// AppConfig identifies the client
type AppConfig struct {
	Name    string `koanf:"name" json:"name" yaml:"name" mapstructure:"name"`
	Version string `koanf:"version" json:"version" yaml:"version" mapstructure:"version"`
	Env     string `koanf:"env" json:"env" yaml:"env" mapstructure:"env"`
}

// APIConfig locates the TradeSense API and bounds each call
type APIConfig struct {
	BaseURL    string        `koanf:"baseurl" json:"baseurl" yaml:"baseurl" mapstructure:"baseurl"`
	Timeout    time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	Retries    int           `koanf:"retries" json:"retries" yaml:"retries" mapstructure:"retries"`
	RetryDelay time.Duration `koanf:"retrydelay" json:"retrydelay" yaml:"retrydelay" mapstructure:"retrydelay"`
}

// AuthConfig controls token renewal
type AuthConfig struct {
	RefreshPath    string        `koanf:"refreshpath" json:"refreshpath" yaml:"refreshpath" mapstructure:"refreshpath"`
	RefreshTimeout time.Duration `koanf:"refreshtimeout" json:"refreshtimeout" yaml:"refreshtimeout" mapstructure:"refreshtimeout"`
}

// Session persister kinds
const (
	SessionMemory = "memory"
	SessionFile   = "file"
	SessionRedis  = "redis"
)

// SessionConfig selects where credentials outlive the process
type SessionConfig struct {
	// Store is one of memory, file or redis
	Store string `koanf:"store" json:"store" yaml:"store" mapstructure:"store"`
	// File is the credentials file for the file store; empty means the user config dir
	File string `koanf:"file" json:"file" yaml:"file" mapstructure:"file"`
	// Key is the cache key for the redis store
	Key string `koanf:"key" json:"key" yaml:"key" mapstructure:"key"`
	// TTL bounds how long the redis store keeps credentials; 0 keeps them
	TTL time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// CacheConfig holds cache backends
type CacheConfig struct {
	Redis redis.Config `koanf:"redis" json:"redis" yaml:"redis" mapstructure:"redis"`
}

// LogConfig controls the zerolog logger
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" mapstructure:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// ObservabilityConfig enables otel tracing and metrics
type ObservabilityConfig struct {
	Enabled  bool   `koanf:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Exporter string `koanf:"exporter" json:"exporter" yaml:"exporter" mapstructure:"exporter"`
}
