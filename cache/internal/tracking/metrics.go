package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	cacheMeterName = "tradesense/cache"

	// Redis is a database, so operation latency follows the db.client conventions
	metricCacheOperationDuration = "db.client.operation.duration"

	metricCacheHit  = "cache.hit"
	metricCacheMiss = "cache.miss"

	metricPoolTotalConns = "cache.pool.connections"
	metricPoolIdleConns  = "cache.pool.idle_connections"
	metricPoolTimeouts   = "cache.pool.timeouts"

	attrDBSystem       = "db.system.name"
	attrDBOperation    = "db.operation.name"
	attrDBNamespace    = "db.namespace"
	attrErrorType      = "error.type"
	attrCacheHitStatus = "cache.hit"
)

// Cache operation names
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpHealth = "ping"
)

var (
	cacheMeter    metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	cacheOperationDuration metric.Float64Histogram
	cacheHitCounter        metric.Int64Counter
	cacheMissCounter       metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize cache metric %s: %v\n", metricName, err)
	}
}

func initCacheMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if cacheMeter != nil {
		return
	}

	cacheMeter = otel.Meter(cacheMeterName)

	var err error
	cacheOperationDuration, err = cacheMeter.Float64Histogram(
		metricCacheOperationDuration,
		metric.WithDescription("Duration of session cache operations"),
		metric.WithUnit("s"),
	)
	logMetricError(metricCacheOperationDuration, err)

	cacheHitCounter, err = cacheMeter.Int64Counter(
		metricCacheHit,
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	logMetricError(metricCacheHit, err)

	cacheMissCounter, err = cacheMeter.Int64Counter(
		metricCacheMiss,
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	logMetricError(metricCacheMiss, err)

	metricsInited = true
}

func ensureCacheMeterInitialized() {
	meterOnce.Do(initCacheMeter)
}

// RecordCacheOperation records latency for one cache call and, for gets,
// a hit or miss.
func RecordCacheOperation(ctx context.Context, operation string, duration time.Duration, hit bool, err error, namespace string) {
	ensureCacheMeterInitialized()

	attrs := []attribute.KeyValue{
		attribute.String(attrDBSystem, "redis"),
		attribute.String(attrDBOperation, operation),
	}
	if namespace != "" {
		attrs = append(attrs, attribute.String(attrDBNamespace, namespace))
	}
	if operation == OpGet {
		attrs = append(attrs, attribute.Bool(attrCacheHitStatus, hit))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorType, classifyError(err)))
	}

	if cacheOperationDuration != nil {
		cacheOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	if operation != OpGet {
		return
	}
	if hit {
		if cacheHitCounter != nil {
			cacheHitCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	} else if cacheMissCounter != nil {
		cacheMissCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"), strings.Contains(msg, "refused"):
		return "connection_error"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "closed"):
		return "closed"
	default:
		return "error"
	}
}

// PoolStats is the subset of connection pool counters exported as gauges.
type PoolStats struct {
	TotalConns int64
	IdleConns  int64
	Timeouts   int64
}

// RegisterPoolMetrics registers observable pool instruments backed by
// statsProvider. The returned func unregisters the callback.
func RegisterPoolMetrics(statsProvider func() PoolStats, namespace string) func() {
	ensureCacheMeterInitialized()

	noop := func() {}
	if cacheMeter == nil {
		return noop
	}

	total, err := cacheMeter.Int64ObservableUpDownCounter(metricPoolTotalConns,
		metric.WithDescription("Open connections in the session cache pool"))
	logMetricError(metricPoolTotalConns, err)
	idle, err := cacheMeter.Int64ObservableUpDownCounter(metricPoolIdleConns,
		metric.WithDescription("Idle connections in the session cache pool"))
	logMetricError(metricPoolIdleConns, err)
	timeouts, err := cacheMeter.Int64ObservableCounter(metricPoolTimeouts,
		metric.WithDescription("Times a connection could not be taken from the pool in time"))
	logMetricError(metricPoolTimeouts, err)

	if total == nil || idle == nil || timeouts == nil {
		return noop
	}

	attrs := metric.WithAttributes(attribute.String(attrDBSystem, "redis"), attribute.String(attrDBNamespace, namespace))
	registration, err := cacheMeter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := statsProvider()
		o.ObserveInt64(total, stats.TotalConns, attrs)
		o.ObserveInt64(idle, stats.IdleConns, attrs)
		o.ObserveInt64(timeouts, stats.Timeouts, attrs)
		return nil
	}, total, idle, timeouts)
	if err != nil {
		logMetricError("pool_metrics_callback", err)
		return noop
	}

	return func() {
		if err := registration.Unregister(); err != nil {
			logMetricError("pool_metrics_unregister", err)
		}
	}
}

// IsInitialized returns true if cache metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	cacheMeter = nil
	cacheOperationDuration = nil
	cacheHitCounter = nil
	cacheMissCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
