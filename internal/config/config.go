// Package config loads the search service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoBackends               = errors.New("at least one backend is required")
	ErrBackendMissingName       = errors.New("backend name is required")
	ErrBackendMissingURL        = errors.New("backend url is required")
	ErrNoEnabledBackends        = errors.New("at least one backend must be enabled")
	ErrInvalidBackendTimeout    = errors.New("backend timeout_ms must be at least 1")
	ErrInvalidSearchTimeout     = errors.New("server.search_timeout_ms must be at least 1")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidRateWindow        = errors.New("rate_limit.window_sec must be at least 1")
	ErrInvalidOutboundRate      = errors.New("rate_limit.outbound_rps must be non-negative")
	ErrInvalidCacheTTL          = errors.New("cache.ttl_sec must be non-negative")
	ErrInvalidCurrency          = errors.New("normalize.default_currency must be a 3-letter code")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'json' or 'text'")
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backends  []BackendConfig `yaml:"backends"`
	Retry     RetryPolicy     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	AllowedOrigin   string `yaml:"allowed_origin"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	SearchTimeoutMs int    `yaml:"search_timeout_ms"`
}

// BackendConfig describes one JSON-RPC tool backend.
type BackendConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Tool      string `yaml:"tool"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Enabled   bool   `yaml:"enabled"`
}

// Timeout returns the per-attempt timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// RetryPolicy defines retry behavior for backend calls.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// RateLimitConfig holds inbound (per client) and outbound (per backend) limits.
type RateLimitConfig struct {
	Requests      int     `yaml:"requests"`
	WindowSec     int     `yaml:"window_sec"`
	OutboundRPS   float64 `yaml:"outbound_rps"`
	OutboundBurst int     `yaml:"outbound_burst"`
}

// Window returns the inbound limiter window.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSec) * time.Second
}

// CacheConfig controls the response cache. An empty RedisAddr keeps the cache in memory only.
type CacheConfig struct {
	TTLSec      int    `yaml:"ttl_sec"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// NormalizeConfig overrides parts of the normalization policy.
// Empty values keep the built-in defaults.
type NormalizeConfig struct {
	DefaultCurrency string   `yaml:"default_currency"`
	SearchSource    string   `yaml:"search_source"`
	PlanSource      string   `yaml:"plan_source"`
	PriceFields     []string `yaml:"price_fields"`
	GBPPriceFields  []string `yaml:"gbp_price_fields"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that talks to a single local backend.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigin:   "*",
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 30,
			IdleTimeoutSec:  60,
			SearchTimeoutMs: 20000,
		},
		Backends: []BackendConfig{
			{
				Name:      "hotel-agent",
				URL:       "http://localhost:9001/mcp",
				Tool:      "hotel_search",
				TimeoutMs: 8000,
				Enabled:   true,
			},
		},
		Retry: RetryPolicy{
			MaxAttempts:       3,
			InitialDelayMs:    200,
			MaxDelayMs:        2000,
			BackoffMultiplier: 2.0,
		},
		RateLimit: RateLimitConfig{
			Requests:      30,
			WindowSec:     60,
			OutboundRPS:   5,
			OutboundBurst: 5,
		},
		Cache: CacheConfig{
			TTLSec:      30,
			RedisPrefix: "luxsearch:",
		},
		Normalize: NormalizeConfig{
			DefaultCurrency: "GBP",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies LUX_*
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("LUX_ADDR", c.Server.Addr)
	c.Server.AllowedOrigin = getEnv("LUX_ALLOWED_ORIGIN", c.Server.AllowedOrigin)
	c.Cache.RedisAddr = getEnv("LUX_REDIS_ADDR", c.Cache.RedisAddr)
	c.Normalize.DefaultCurrency = getEnv("LUX_DEFAULT_CURRENCY", c.Normalize.DefaultCurrency)
	c.Logging.Level = getEnv("LUX_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LUX_LOG_FORMAT", c.Logging.Format)
	c.RateLimit.Requests = getEnvInt("LUX_RATE_LIMIT", c.RateLimit.Requests)

	if url := os.Getenv("LUX_BACKEND_URL"); url != "" {
		if len(c.Backends) == 0 {
			c.Backends = append(c.Backends, BackendConfig{Name: "default", Tool: "hotel_search", TimeoutMs: 8000, Enabled: true})
		}
		c.Backends[0].URL = url
	}
	if tool := os.Getenv("LUX_BACKEND_TOOL"); tool != "" && len(c.Backends) > 0 {
		c.Backends[0].Tool = tool
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.SearchTimeoutMs < 1 {
		return ErrInvalidSearchTimeout
	}

	if len(c.Backends) == 0 {
		return ErrNoBackends
	}

	enabledCount := 0
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("%w: backends[%d]", ErrBackendMissingName, i)
		}
		if b.URL == "" {
			return fmt.Errorf("%w: backends[%d]", ErrBackendMissingURL, i)
		}
		if b.TimeoutMs < 1 {
			return fmt.Errorf("%w: backends[%d]", ErrInvalidBackendTimeout, i)
		}
		if b.Enabled {
			enabledCount++
		}
	}
	if enabledCount == 0 {
		return ErrNoEnabledBackends
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.RateLimit.WindowSec < 1 {
		return ErrInvalidRateWindow
	}
	if c.RateLimit.OutboundRPS < 0 {
		return ErrInvalidOutboundRate
	}

	if c.Cache.TTLSec < 0 {
		return ErrInvalidCacheTTL
	}

	if cur := c.Normalize.DefaultCurrency; cur != "" && len(cur) != 3 {
		return ErrInvalidCurrency
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return ErrInvalidLogLevel
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return ErrInvalidLogFormat
	}

	return nil
}

// EnabledBackends returns only enabled backends.
func (c *Config) EnabledBackends() []BackendConfig {
	var enabled []BackendConfig
	for _, b := range c.Backends {
		if b.Enabled {
			enabled = append(enabled, b)
		}
	}
	return enabled
}

// SearchTimeout returns the overall fan-out deadline.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Server.SearchTimeoutMs) * time.Millisecond
}

// GetRetryDelay calculates the exponential backoff delay before attempt.
// The first attempt never waits.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 2; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	if rp.MaxDelayMs > 0 && int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
