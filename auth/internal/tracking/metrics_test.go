package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestMeterProvider(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	ResetForTesting()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		ResetForTesting()
	})

	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != authInstrumentationName {
			continue
		}
		for _, m := range sm.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func TestRecordRefresh(t *testing.T) {
	reader := setupTestMeterProvider(t)

	RecordRefresh(context.Background(), ResultSuccess, 20*time.Millisecond, nil)
	RecordRefresh(context.Background(), ResultFailure, 5*time.Millisecond, errors.New("rejected"))
	RecordRefresh(context.Background(), ResultSuccess, 10*time.Millisecond, nil)

	metrics := collect(t, reader)

	attempts, ok := metrics[metricRefreshAttempts]
	require.True(t, ok, "expected auth.refresh.attempts metric")
	sum, ok := attempts.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byResult := map[string]int64{}
	for _, dp := range sum.DataPoints {
		result, _ := dp.Attributes.Value(attribute.Key(attrResult))
		byResult[result.AsString()] += dp.Value
	}
	assert.Equal(t, int64(2), byResult[ResultSuccess])
	assert.Equal(t, int64(1), byResult[ResultFailure])

	duration, ok := metrics[metricRefreshDuration]
	require.True(t, ok, "expected auth.refresh.duration metric")
	_, ok = duration.Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
	assert.True(t, IsInitialized())
}

func TestRecordReplay(t *testing.T) {
	reader := setupTestMeterProvider(t)

	RecordReplay(context.Background())
	RecordReplay(context.Background())

	replays, ok := collect(t, reader)[metricReplays]
	require.True(t, ok, "expected auth.replays metric")
	sum, ok := replays.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestRefreshSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	_, span := StartRefreshSpan(context.Background())
	EndRefreshSpan(span, ResultFailure, errors.New("invalid refresh token"))

	_, okSpan := StartRefreshSpan(context.Background())
	EndRefreshSpan(okSpan, ResultSuccess, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, SpanRefresh, ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String(attrResult, ResultFailure))
	assert.NotEmpty(t, ended[0].Events(), "error should be recorded as span event")

	assert.Equal(t, codes.Ok, ended[1].Status().Code)
}

func TestResetForTesting(t *testing.T) {
	setupTestMeterProvider(t)
	RecordReplay(context.Background())
	assert.True(t, IsInitialized())

	ResetForTesting()
	assert.False(t, IsInitialized())
}
