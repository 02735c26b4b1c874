package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/smartedu/dashboard/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := telemetry.Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
		ServiceName:       "test-dashboard",
	}

	tp, err := telemetry.NewTracerProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(ctx))
}

func newRecordingProvider(t *testing.T, ratio float64) (*telemetry.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exp := tracetest.NewInMemoryExporter()
	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:       true,
		SamplingRatio: ratio,
		ServiceName:   "test-dashboard",
	}, zaptest.NewLogger(t), telemetry.WithExporter(exp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	tp, exp := newRecordingProvider(t, 1.0)
	require.True(t, tp.IsEnabled())

	_, span := telemetry.StartActionSpan(context.Background(), "dashboard", "fetch_parents",
		telemetry.WithAttribute("page", 2),
		telemetry.WithAttribute("status", "lead"),
	)
	assert.True(t, span.SpanContext().TraceID().IsValid())
	telemetry.End(span, errors.New("backend unavailable"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "dashboard.fetch_parents", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "backend unavailable", spans[0].Status.Description)
	assert.Len(t, spans[0].Attributes, 2)
}

func TestNewTracerProvider_NeverSample(t *testing.T) {
	_, exp := newRecordingProvider(t, 0)

	_, span := telemetry.StartSpan(context.Background(), "dropped")
	assert.False(t, span.IsRecording())
	span.End()

	assert.Empty(t, exp.GetSpans())
}

func TestRecordError_Nil(t *testing.T) {
	_, exp := newRecordingProvider(t, 1.0)
	_, span := telemetry.StartSpan(context.Background(), "ok")
	telemetry.End(span, nil)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}
