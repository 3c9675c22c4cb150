package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig ensures defaults validate on their own.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.API.MockMode)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 3, cfg.Concurrency.MaxConcurrentRequests)
	assert.Equal(t, 5, cfg.Batch.BatchSize)
	assert.Equal(t, 1000, cfg.Cache.MaxCacheSize)
	assert.Equal(t, 24*time.Hour, cfg.Cache.MaxAge)
	assert.True(t, cfg.Cache.CompressionEnabled)
	assert.False(t, cfg.Redis.Enabled)
}

// TestLoader_FromFile overrides defaults with YAML values.
func TestLoader_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
api:
  api_key: sk-from-file
  base_url: https://llm.example.com/v1
  default_model: gpt-4o
  mock_mode: false
  timeout: 10s
retry:
  max_retries: 5
  retry_delay: 2s
  max_delay: 20s
concurrency:
  max_concurrent_requests: 8
cache:
  cache_dir: /tmp/docflow-test-cache
  max_cache_size: 50
  max_age: 1h
  compression_enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sk-from-file", cfg.API.APIKey)
	assert.Equal(t, "https://llm.example.com/v1", cfg.API.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.API.DefaultModel)
	assert.False(t, cfg.API.MockMode)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.RetryDelay)
	assert.Equal(t, 8, cfg.Concurrency.MaxConcurrentRequests)
	assert.Equal(t, 50, cfg.Cache.MaxCacheSize)
	assert.Equal(t, time.Hour, cfg.Cache.MaxAge)
	assert.False(t, cfg.Cache.CompressionEnabled)

	// Unset fields keep their defaults.
	assert.Equal(t, 5, cfg.Batch.BatchSize)
}

// TestLoader_MissingFileUsesDefaults treats an absent file as defaults-only.
func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().API.BaseURL, cfg.API.BaseURL)
}

// TestLoader_EnvOverride checks environment variables win over file values.
func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("DOCFLOW_API_API_KEY", "sk-from-env")
	t.Setenv("DOCFLOW_API_TIMEOUT", "45s")
	t.Setenv("DOCFLOW_CONCURRENCY_MAX_CONCURRENT_REQUESTS", "12")
	t.Setenv("DOCFLOW_CACHE_COMPRESSION_ENABLED", "false")
	t.Setenv("DOCFLOW_CONCURRENCY_RATE_LIMIT_RPS", "2.5")
	t.Setenv("DOCFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/docflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.API.APIKey)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, 12, cfg.Concurrency.MaxConcurrentRequests)
	assert.False(t, cfg.Cache.CompressionEnabled)
	assert.Equal(t, 2.5, cfg.Concurrency.RateLimitRPS)
	assert.Equal(t, []string{"stdout", "/var/log/docflow.log"}, cfg.Log.OutputPaths)
}

// TestLoader_InvalidYAML surfaces parse failures.
func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// TestConfig_Validate exercises the rejection paths.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"live mode without api key", func(c *Config) { c.API.MockMode = false; c.API.APIKey = "" }},
		{"negative max retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
		{"retry delay above max delay", func(c *Config) { c.Retry.RetryDelay = time.Minute; c.Retry.MaxDelay = time.Second }},
		{"zero concurrency", func(c *Config) { c.Concurrency.MaxConcurrentRequests = 0 }},
		{"zero batch size", func(c *Config) { c.Batch.BatchSize = 0 }},
		{"zero cache size", func(c *Config) { c.Cache.MaxCacheSize = 0 }},
		{"zero max age", func(c *Config) { c.Cache.MaxAge = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestBuildLogger never returns nil, whatever the config.
func TestBuildLogger(t *testing.T) {
	assert.NotNil(t, BuildLogger(DefaultLogConfig()))
	assert.NotNil(t, BuildLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, BuildLogger(LogConfig{}))
}
