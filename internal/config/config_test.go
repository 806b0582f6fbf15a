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

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Worker.AIConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.Cycle.Interval)
	assert.Equal(t, 10, cfg.Cycle.RegionLimit)
	assert.Equal(t, 3.5, cfg.Cycle.MinQuakeMagnitude)
	assert.Equal(t, 5, cfg.Cycle.FireClusterMin)
	assert.Equal(t, 20, cfg.Cycle.FireHighThreshold)
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}, cfg.AI.RetryBackoffs)
	assert.Equal(t, "254", cfg.SMS.CountryCode)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("AI_CONCURRENCY", "8")
	t.Setenv("CYCLE_INTERVAL", "5m")
	t.Setenv("AI_RETRY_BACKOFFS", "1s, 2s")
	t.Setenv("BBOX_MIN_LAT", "-1.5")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Worker.AIConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.Cycle.Interval)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.AI.RetryBackoffs)
	assert.Equal(t, -1.5, cfg.Sources.BoundingBox.MinLat)
	assert.Equal(t, "key", cfg.AI.GeminiKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "SERVER_PORT", "70000"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"interval too short", "CYCLE_INTERVAL", "10s"},
		{"bad backoff", "AI_RETRY_BACKOFFS", "5s,soon"},
		{"inverted bbox", "BBOX_MIN_LAT", "10"},
		{"unknown cache backend", "CACHE_BACKEND", "memcached"},
		{"high threshold below cluster min", "CYCLE_FIRE_HIGH_THRESHOLD", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
