package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
base_url: http://10.0.0.5:8080/v1
model: llama-3-8b
timeout: 45
cache_enabled: true
cache_ttl: 600
cache_size: 256
circuit_breaker:
  fail_max: 5
  reset_timeout: 120
retry:
  max_attempts: 4
  initial_delay_ms: 500
  multiplier: 1.5
redis:
  enabled: true
  host: redis.internal
  port: 6380
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:8080/v1", cfg.BaseURL)
	assert.Equal(t, "llama-3-8b", cfg.Model)
	assert.Equal(t, 45, cfg.Timeout)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 600, cfg.CacheTTL)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailMax)
	assert.Equal(t, 120, cfg.CircuitBreaker.ResetTimeout)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.Retry.InitialDelayMS)
	assert.Equal(t, 1.5, cfg.Retry.Multiplier)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.GetRedisAddr())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
model: llama-3-8b
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:1337/v1", cfg.BaseURL)
	assert.Equal(t, 30, cfg.Timeout)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 300, cfg.CacheTTL)
	assert.Equal(t, 128, cfg.CacheSize)
	assert.Equal(t, 3, cfg.CircuitBreaker.FailMax)
	assert.Equal(t, 60, cfg.CircuitBreaker.ResetTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
model: llama-3-8b
`)
	t.Setenv("LLMGUARD_API_KEY", "sk-from-env")
	t.Setenv("LLMGUARD_BASE_URL", "http://env-host:9000/v1")
	t.Setenv("LLMGUARD_CIRCUIT_BREAKER_FAIL_MAX", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.APIKey)
	assert.Equal(t, "http://env-host:9000/v1", cfg.BaseURL)
	assert.Equal(t, 7, cfg.CircuitBreaker.FailMax)
}

func TestLoad_MissingFileError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := writeConfig(t, `
model: ""
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "model")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			BaseURL:      "http://localhost:1337/v1",
			Model:        "llama-3-8b",
			Timeout:      30,
			CacheEnabled: true,
			CacheTTL:     300,
			CacheSize:    128,
			CircuitBreaker: BreakerConfig{
				FailMax:      3,
				ResetTimeout: 60,
			},
			Retry: RetryConfig{MaxAttempts: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, "base_url"},
		{"relative base url", func(c *Config) { c.BaseURL = "localhost:1337" }, "base_url"},
		{"ftp scheme", func(c *Config) { c.BaseURL = "ftp://host/v1" }, "scheme"},
		{"missing model", func(c *Config) { c.Model = "" }, "model"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"zero cache size", func(c *Config) { c.CacheSize = 0 }, "cache_size"},
		{"zero cache ttl", func(c *Config) { c.CacheTTL = 0 }, "cache_ttl"},
		{"cache disabled skips cache checks", func(c *Config) {
			c.CacheEnabled = false
			c.CacheSize = 0
			c.CacheTTL = 0
		}, ""},
		{"zero fail max", func(c *Config) { c.CircuitBreaker.FailMax = 0 }, "fail_max"},
		{"zero reset timeout", func(c *Config) { c.CircuitBreaker.ResetTimeout = 0 }, "reset_timeout"},
		{"zero max attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"rate limit enabled without rate", func(c *Config) {
			c.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 0}
		}, "requests_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Config{
		Timeout:  45,
		CacheTTL: 600,
		CircuitBreaker: BreakerConfig{
			ResetTimeout: 120,
		},
		Retry: RetryConfig{InitialDelayMS: 500},
	}
	assert.Equal(t, 45*time.Second, cfg.GetTimeout())
	assert.Equal(t, 10*time.Minute, cfg.GetCacheTTL())
	assert.Equal(t, 2*time.Minute, cfg.CircuitBreaker.GetResetTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.GetInitialDelay())
}
