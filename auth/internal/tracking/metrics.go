// Package tracking records OpenTelemetry spans and metrics for token refresh.
// Instruments come from the global providers and stay no-op until an SDK
// provider is installed.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Instrumentation scope for auth spans and metrics
	authInstrumentationName = "tradesense/auth"

	// SpanRefresh wraps one token exchange with the auth server
	SpanRefresh = "auth.refresh"

	metricRefreshAttempts = "auth.refresh.attempts" // Counter
	metricRefreshDuration = "auth.refresh.duration" // Histogram in seconds
	metricReplays         = "auth.replays"          // Counter

	attrResult    = "result"
	attrErrorType = "error.type"
)

// Refresh outcomes reported in the result attribute
const (
	ResultSuccess        = "success"
	ResultFailure        = "failure"
	ResultNoRefreshToken = "no_refresh_token"
)

var (
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	authMeter     metric.Meter
	metricsInited bool

	refreshAttempts metric.Int64Counter
	refreshDuration metric.Float64Histogram
	replayCounter   metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize auth metric %s: %v\n", metricName, err)
	}
}

func initAuthMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if authMeter != nil {
		return
	}
	authMeter = otel.Meter(authInstrumentationName)

	var err error
	refreshAttempts, err = authMeter.Int64Counter(
		metricRefreshAttempts,
		metric.WithDescription("Number of token refresh exchanges by result"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricRefreshAttempts, err)

	refreshDuration, err = authMeter.Float64Histogram(
		metricRefreshDuration,
		metric.WithDescription("Duration of token refresh exchanges"),
		metric.WithUnit("s"),
	)
	logMetricError(metricRefreshDuration, err)

	replayCounter, err = authMeter.Int64Counter(
		metricReplays,
		metric.WithDescription("Number of requests replayed after a 401"),
		metric.WithUnit("{request}"),
	)
	logMetricError(metricReplays, err)

	metricsInited = true
}

func ensureAuthMeterInitialized() {
	meterOnce.Do(initAuthMeter)
}

// StartRefreshSpan starts the span covering one token exchange
func StartRefreshSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(authInstrumentationName).Start(ctx, SpanRefresh,
		trace.WithSpanKind(trace.SpanKindClient))
}

// EndRefreshSpan records the exchange outcome on span and ends it
func EndRefreshSpan(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String(attrResult, result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordRefresh counts one exchange and its duration
func RecordRefresh(ctx context.Context, result string, duration time.Duration, err error) {
	ensureAuthMeterInitialized()

	attrs := []attribute.KeyValue{attribute.String(attrResult, result)}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorType, fmt.Sprintf("%T", err)))
	}

	if refreshAttempts != nil {
		refreshAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if refreshDuration != nil {
		refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// RecordReplay counts one replayed request
func RecordReplay(ctx context.Context) {
	ensureAuthMeterInitialized()

	if replayCounter != nil {
		replayCounter.Add(ctx, 1)
	}
}

// IsInitialized returns true if auth metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	authMeter = nil
	refreshAttempts = nil
	refreshDuration = nil
	replayCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
