package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 5*time.Second, cfg.DispatchInterval)
	assert.Equal(t, 24*time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "pomodoro-sessions", cfg.ServiceName)
	assert.Empty(t, cfg.OTelEndpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NOTIFY_DISPATCH_INTERVAL", "1s")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("TOKEN_TTL_HOURS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.DispatchInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL())
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("NOTIFY_RETENTION", "a week")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
