package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/stageflow/config"
)

func TestRun_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{name: "no args", args: nil, wantCode: 1, wantErr: "Usage:"},
		{name: "version", args: []string{"version"}, wantCode: 0, wantOut: "stageflow dev"},
		{name: "help", args: []string{"help"}, wantCode: 0, wantOut: "Commands:"},
		{name: "unknown", args: []string{"frobnicate"}, wantCode: 1, wantErr: "Unknown command: frobnicate"},
		{name: "sessions without subcommand", args: []string{"sessions"}, wantCode: 1, wantErr: "usage: stageflow sessions"},
		{name: "negative timeout", args: []string{"run", "--timeout", "-1s"}, wantCode: 1, wantErr: "timeout must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, strings.NewReader(""), &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stdout.String(), tt.wantOut)
			assert.Contains(t, stderr.String(), tt.wantErr)
		})
	}
}

func TestRunHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ready", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	var out bytes.Buffer
	assert.NoError(t, runHealthCheck([]string{"--addr", healthy.URL}, &out))
	assert.Equal(t, "OK\n", out.String())

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()
	assert.ErrorContains(t, runHealthCheck([]string{"--addr", unhealthy.URL}, &out), "status 503")
}

func TestRunFlags_Apply(t *testing.T) {
	cfg := config.DefaultConfig()
	f := runFlags{definitions: "/tmp/defs", approve: config.HITLModeAuto}
	assert.NoError(t, f.apply(cfg))
	assert.Equal(t, "/tmp/defs", cfg.Engine.DefinitionsDir)
	assert.Equal(t, config.HITLModeAuto, cfg.HITL.Mode)

	assert.Error(t, runFlags{approve: "telepathy"}.apply(config.DefaultConfig()))
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger := initLogger(config.LogConfig{Level: "debug", Format: format})
		assert.NotNil(t, logger)
	}
	assert.NotNil(t, initLogger(config.LogConfig{Level: "not-a-level"}))
}
