package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultSessionConfig(), cfg.Session)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
	assert.Equal(t, DefaultHITLConfig(), cfg.HITL)
	assert.Equal(t, DefaultEngineConfig(), cfg.Engine)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
	assert.Equal(t, DefaultMetricsConfig(), cfg.Metrics)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, float64(100), cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	assert.Equal(t, "file", cfg.Store)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "stageflow:", cfg.KeyPrefix)
}

func TestDefaultHITLConfig(t *testing.T) {
	cfg := DefaultHITLConfig()
	assert.Equal(t, HITLModeConsole, cfg.Mode)
	assert.Zero(t, cfg.DefaultTimeout)
	assert.Equal(t, "pause", cfg.TimeoutBehavior)
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.Equal(t, "./config", cfg.DefinitionsDir)
	assert.Equal(t, 10, cfg.DefaultMaxIterations)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.False(t, cfg.WatchDefinitions)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}

func TestDefaultTelemetryAndMetrics(t *testing.T) {
	tel := DefaultTelemetryConfig()
	assert.False(t, tel.Enabled)
	assert.Equal(t, "stageflow", tel.ServiceName)

	m := DefaultMetricsConfig()
	assert.True(t, m.Enabled)
	assert.Equal(t, "/metrics", m.Path)
}
