// Package config loads the client-core configuration from YAML and
// environment overrides, and owns global logger initialization.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration surface consumed by the client core.
type Config struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	Timeout      int    `mapstructure:"timeout"` // seconds
	CacheEnabled bool   `mapstructure:"cache_enabled"`
	CacheTTL     int    `mapstructure:"cache_ttl"` // seconds
	CacheSize    int    `mapstructure:"cache_size"`

	CircuitBreaker BreakerConfig   `mapstructure:"circuit_breaker"`
	Retry          RetryConfig     `mapstructure:"retry"`
	Redis          RedisConfig     `mapstructure:"redis"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "json" or "console"
}

// BreakerConfig contains circuit breaker thresholds.
type BreakerConfig struct {
	FailMax      int `mapstructure:"fail_max"`
	ResetTimeout int `mapstructure:"reset_timeout"` // seconds
}

// RetryConfig contains backoff settings for the retry wrapper.
type RetryConfig struct {
	MaxAttempts    int     `mapstructure:"max_attempts"`
	InitialDelayMS int     `mapstructure:"initial_delay_ms"`
	Multiplier     float64 `mapstructure:"multiplier"`
}

// RedisConfig contains the optional persistent cache tier settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig contains optional client-side request pacing.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("LLMGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults plus environment variables apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:1337/v1")
	// Every key needs a registered default: AutomaticEnv only resolves keys
	// viper already knows about, so an unregistered key could never be set
	// from the environment.
	v.SetDefault("api_key", "")
	v.SetDefault("model", "")
	v.SetDefault("timeout", 30)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_ttl", 300)
	v.SetDefault("cache_size", 128)

	v.SetDefault("circuit_breaker.fail_max", 3)
	v.SetDefault("circuit_breaker.reset_timeout", 60)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay_ms", 1000)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 60)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Validate checks the loaded configuration and returns an actionable error
// for the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not a valid http(s) URL", c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return fmt.Errorf("model must be set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	if c.CacheEnabled {
		if c.CacheSize <= 0 {
			return fmt.Errorf("cache_size must be positive when cache_enabled, got %d", c.CacheSize)
		}
		if c.CacheTTL <= 0 {
			return fmt.Errorf("cache_ttl must be positive when cache_enabled, got %d", c.CacheTTL)
		}
	}
	if c.CircuitBreaker.FailMax <= 0 {
		return fmt.Errorf("circuit_breaker.fail_max must be positive, got %d", c.CircuitBreaker.FailMax)
	}
	if c.CircuitBreaker.ResetTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.reset_timeout must be positive, got %d", c.CircuitBreaker.ResetTimeout)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive when enabled")
	}
	return nil
}

// GetTimeout returns the request timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetCacheTTL returns the cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetResetTimeout returns the breaker reset timeout as a duration.
func (c *BreakerConfig) GetResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeout) * time.Second
}

// GetInitialDelay returns the first retry delay as a duration.
func (c *RetryConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMS) * time.Millisecond
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
