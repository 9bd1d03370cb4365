package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/kiranshivaraju/trialscope/internal/config"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitTracing_Disabled(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), config.TelemetryConfig{Enabled: false}, "test", nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracing_EnabledWithoutEndpoint(t *testing.T) {
	restoreGlobals(t)

	cfg := config.TelemetryConfig{Enabled: true, SamplerRatio: 1, ServiceName: "trialscope-test"}
	shutdown, err := InitTracing(context.Background(), cfg, "test", nil)
	require.NoError(t, err)
	defer shutdown(context.Background())

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitTracing_OTLPEndpoint(t *testing.T) {
	restoreGlobals(t)

	// otlptracehttp connects lazily, so construction succeeds without a collector.
	cfg := config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4318", Insecure: true, SamplerRatio: 0.5}
	shutdown, err := InitTracing(context.Background(), cfg, "test", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.25, clampRatio(0.25))
}
