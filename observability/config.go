package observability

import (
	"fmt"
	"io"
	"time"
)

// Exporter names
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// DefaultMetricInterval is how often the periodic reader exports metrics
const DefaultMetricInterval = 30 * time.Second

// Config selects and configures the telemetry exporters
type Config struct {
	// Enabled installs SDK providers; false yields a no-op provider
	Enabled bool
	// Exporter is stdout or none. "none" keeps the SDK without exporting,
	// which is useful to exercise instrumentation in tests.
	Exporter string

	ServiceName    string
	ServiceVersion string
	Environment    string

	// Writer receives stdout exporter output (default: os.Stdout)
	Writer io.Writer
	// MetricInterval overrides DefaultMetricInterval
	MetricInterval time.Duration
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	if c.ServiceName == "" {
		c.ServiceName = "tradesense"
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = DefaultMetricInterval
	}
}

// Validate rejects unknown exporters
func (c *Config) Validate() error {
	switch c.Exporter {
	case ExporterStdout, ExporterNone:
		return nil
	default:
		return fmt.Errorf("exporter '%s': %w", c.Exporter, ErrInvalidExporter)
	}
}
