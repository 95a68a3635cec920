package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.WorkspaceID, "workspace id must never be defaulted")
	assert.Empty(t, cfg.Auth.Token, "credentials must never be defaulted")
	assert.Equal(t, "tracekit-go-app", cfg.ServiceName)
	assert.Equal(t, "https://api.tracekit.dev", cfg.BaseURL)
	assert.Equal(t, 2048, cfg.Trace.MaxQueueSize)
	assert.Equal(t, 512, cfg.Trace.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Trace.ScheduleDelay)
	assert.Equal(t, 25, cfg.Trace.ExportBatchCap)
	assert.Equal(t, 10*time.Second, cfg.Trace.FlushTimeout)
	assert.Equal(t, 10*time.Second, cfg.Trace.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TRACEKIT_WORKSPACE_ID", "ws-42")
	t.Setenv("TRACEKIT_SERVICE_NAME", "payments")
	t.Setenv("TRACEKIT_BASE_URL", "https://collector.internal")
	t.Setenv("TRACEKIT_MAX_QUEUE_SIZE", "4096")
	t.Setenv("TRACEKIT_SCHEDULE_DELAY", "2s")
	t.Setenv("TRACEKIT_API_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ws-42", cfg.WorkspaceID)
	assert.Equal(t, "payments", cfg.ServiceName)
	assert.Equal(t, "https://collector.internal", cfg.BaseURL)
	assert.Equal(t, 4096, cfg.Trace.MaxQueueSize)
	assert.Equal(t, 2*time.Second, cfg.Trace.ScheduleDelay)
	assert.Equal(t, "tok", cfg.Auth.Token)

	// Unset knobs keep their defaults.
	assert.Equal(t, 512, cfg.Trace.BatchSize)
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("TRACEKIT_MAX_QUEUE_SIZE", "not-a-number")
	cfg := LoadOrDefault()
	assert.Equal(t, 2048, cfg.Trace.MaxQueueSize)
}
