package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint16(8080), cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "./data", cfg.Ensemble.DataDir)
	assert.InDelta(t, 0.85, cfg.Ensemble.Cap, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Sentiment.Timeout)
	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Model.Required)
	assert.Empty(t, cfg.Model.AdminSecret)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PATH", "/models/current.json")
	t.Setenv("MODEL_REQUIRED", "true")
	t.Setenv("SENTIMENT_URL", "http://sentiment.local/analyze")
	t.Setenv("SENTIMENT_TIMEOUT", "2s")
	t.Setenv("HYBRID_CAP", "0.9")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("ADMIN_TOKEN_SECRET", "0123456789abcdef0123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint16(9090), cfg.Server.Port)
	assert.Equal(t, "/models/current.json", cfg.Model.Path)
	assert.True(t, cfg.Model.Required)
	assert.Equal(t, "http://sentiment.local/analyze", cfg.Sentiment.URL)
	assert.Equal(t, 2*time.Second, cfg.Sentiment.Timeout)
	assert.InDelta(t, 0.9, cfg.Ensemble.Cap, 1e-9)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "0123456789abcdef0123", cfg.Model.AdminSecret)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "cap above one", env: map[string]string{"HYBRID_CAP": "1.5"}},
		{name: "model required without path", env: map[string]string{"MODEL_REQUIRED": "true"}},
		{name: "sentiment url", env: map[string]string{"SENTIMENT_URL": "not a url"}},
		{name: "batch workers", env: map[string]string{"BATCH_WORKERS": "0"}},
		{name: "short admin secret", env: map[string]string{"ADMIN_TOKEN_SECRET": "short"}},
		{name: "gin mode", env: map[string]string{"GIN_MODE": "prod"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
