package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/BaSui01/stageflow/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func randomPortConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ServerConfig{HTTPPort: 9090, WriteTimeout: 5 * time.Minute})
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(okHandler(), randomPortConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	// 幂等
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartErrors(t *testing.T) {
	m := NewManager(okHandler(), randomPortConfig(), nil)
	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_ListenFailure(t *testing.T) {
	cfg := randomPortConfig()
	cfg.Addr = "256.0.0.1:99999"
	m := NewManager(okHandler(), cfg, zap.NewNop())
	assert.Error(t, m.Start())
}

func TestManager_Run(t *testing.T) {
	m := NewManager(okHandler(), randomPortConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + m.Addr() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, m.IsRunning())
}

func TestManager_Errors(t *testing.T) {
	m := NewManager(okHandler(), randomPortConfig(), zap.NewNop())
	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}
