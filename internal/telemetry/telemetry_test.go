package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/stageflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

func restoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func shutdownQuickly(t *testing.T, p *Providers) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestInit_Disabled(t *testing.T) {
	restoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_NilLogger(t *testing.T) {
	restoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
}

func TestInit_MissingEndpoint(t *testing.T) {
	restoreGlobalProviders(t)

	_, err := Init(config.TelemetryConfig{Enabled: true}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "otlp_endpoint")
}

func TestInit_Enabled(t *testing.T) {
	restoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		SampleRate:   0.5,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	shutdownQuickly(t, p)

	assert.True(t, p.Enabled())
	assert.NotNil(t, p.mp)

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestProviders_Shutdown_Real(t *testing.T) {
	restoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "stageflow-shutdown-test",
		SampleRate:   1,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	// 没有 collector 时 exporter 可能返回连接错误，这里只确认不会 panic
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestBuildVersion(t *testing.T) {
	assert.Equal(t, "dev", buildVersion())
}
