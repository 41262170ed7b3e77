package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50*time.Millisecond, cfg.BatchWindow())
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, 60*time.Second, cfg.PongTimeout())
	assert.Equal(t, 60*time.Second, cfg.CacheTTL())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LUMORA_HTTP_ADDR", ":9000")
	t.Setenv("LUMORA_WORKERS", "4")
	t.Setenv("LUMORA_DISABLE_CACHE", "true")
	t.Setenv("LUMORA_LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.DisableCache)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults.
	assert.Equal(t, 50, cfg.BatchWindowMs)
}

func TestValidate(t *testing.T) {
	t.Run("missing http addr", func(t *testing.T) {
		cfg := Default()
		cfg.HTTPAddr = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http_addr")
	})

	t.Run("negative workers", func(t *testing.T) {
		cfg := Default()
		cfg.Workers = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("pong window shorter than ping interval", func(t *testing.T) {
		cfg := Default()
		cfg.PongTimeoutSecs = 10
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pong_timeout")
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := Default()
		cfg.LogLevel = "verbose"
		require.Error(t, cfg.Validate())
	})
}
