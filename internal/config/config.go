// Package config loads and validates the YAML configuration for one
// exchange client instance: credentials, endpoint URLs, rate-limit
// scopes, retry/circuit tuning, and cache backing. One struct per concern,
// a top-level Validate that delegates to each sub-struct's own Validate,
// and conversion helpers (Window, TickerTTL, To*Config) so callers never
// do unit math inline.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"xchclient/internal/net/circuit"
	"xchclient/internal/net/ratelimit"
	"xchclient/internal/net/retry"
)

// Config is the complete configuration for one exchange client instance.
type Config struct {
	Exchange ExchangeConfig         `yaml:"exchange"`
	Auth     AuthConfig             `yaml:"auth"`
	Limits   map[string]LimitConfig `yaml:"limits"`
	Retry    RetryConfig            `yaml:"retry"`
	Circuit  CircuitConfig          `yaml:"circuit"`
	Cache    CacheConfig            `yaml:"cache"`
}

// ExchangeConfig names the venue and its REST/WebSocket endpoints.
type ExchangeConfig struct {
	Name   string `yaml:"name"`
	RESTURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`
}

// AuthConfig carries the credential pair used to mint bearer tokens.
// Login/Password are expected to come from environment variables in
// production; they are accepted here as plain strings for local/test
// configs only and are never logged.
type AuthConfig struct {
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// LimitConfig is one rate-limit scope's (limit, window) pair, keyed by
// scope name ("global", "trading", "public_data", "list_orders") in the
// parent map.
type LimitConfig struct {
	Limit     int `yaml:"limit"`
	WindowMS  int `yaml:"window_ms"`
}

// RetryConfig mirrors retry.Config in YAML-friendly units.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	BaseDelayMS       int `yaml:"base_delay_ms"`
	BackoffMultiplier int `yaml:"backoff_multiplier"`
	MaxDelayMS        int `yaml:"max_delay_ms"`
	JitterMaxMS       int `yaml:"jitter_max_ms"`
}

// CircuitConfig tunes the sony/gobreaker circuit per scope.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	TimeoutMS        int `yaml:"timeout_ms"`
	HalfOpenMaxCalls int `yaml:"half_open_max_calls"`
}

// CacheConfig sizes the response cache and sets the ticker TTL. It has no
// backend setting: cache.NewAuto picks Redis when the REDIS_ADDR
// environment variable is set and the in-process TTL+LRU cache otherwise.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TickerTTLSecs int `yaml:"ticker_ttl_secs"`
}

// Load reads and validates a Config from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every sub-config for internal consistency.
func (c *Config) Validate() error {
	if c.Exchange.Name == "" {
		return fmt.Errorf("exchange.name cannot be empty")
	}
	if c.Exchange.RESTURL == "" {
		return fmt.Errorf("exchange.rest_url cannot be empty")
	}
	if c.Exchange.WSURL == "" {
		return fmt.Errorf("exchange.ws_url cannot be empty")
	}
	for name, lim := range c.Limits {
		if err := lim.Validate(); err != nil {
			return fmt.Errorf("limits.%s: %w", name, err)
		}
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Circuit.Validate(); err != nil {
		return fmt.Errorf("circuit: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Validate ensures a LimitConfig is usable.
func (l *LimitConfig) Validate() error {
	if l.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", l.Limit)
	}
	if l.WindowMS <= 0 {
		return fmt.Errorf("window_ms must be positive, got %d", l.WindowMS)
	}
	return nil
}

// Window returns the LimitConfig's window as a time.Duration.
func (l LimitConfig) Window() time.Duration { return time.Duration(l.WindowMS) * time.Millisecond }

// Validate ensures a RetryConfig is usable.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", r.MaxAttempts)
	}
	if r.BaseDelayMS <= 0 {
		return fmt.Errorf("base_delay_ms must be positive, got %d", r.BaseDelayMS)
	}
	if r.MaxDelayMS < r.BaseDelayMS {
		return fmt.Errorf("max_delay_ms (%d) must be >= base_delay_ms (%d)", r.MaxDelayMS, r.BaseDelayMS)
	}
	if r.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1, got %d", r.BackoffMultiplier)
	}
	return nil
}

// Validate ensures a CircuitConfig is usable.
func (c *CircuitConfig) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMS)
	}
	if c.HalfOpenMaxCalls <= 0 {
		return fmt.Errorf("half_open_max_calls must be positive, got %d", c.HalfOpenMaxCalls)
	}
	return nil
}

// Validate ensures a CacheConfig is usable.
func (c *CacheConfig) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be positive, got %d", c.MaxEntries)
	}
	if c.TickerTTLSecs <= 0 {
		return fmt.Errorf("ticker_ttl_secs must be positive, got %d", c.TickerTTLSecs)
	}
	return nil
}

// TickerTTL returns the cache's ticker TTL as a time.Duration.
func (c CacheConfig) TickerTTL() time.Duration {
	return time.Duration(c.TickerTTLSecs) * time.Second
}

// ToRetryConfig converts the YAML-loaded RetryConfig into the
// retry.Config retry.Do expects, layering onto retry.DefaultConfig so
// unset boolean/status fields keep their sensible defaults.
func (r RetryConfig) ToRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = r.MaxAttempts
	cfg.BaseDelay = time.Duration(r.BaseDelayMS) * time.Millisecond
	cfg.BackoffMultiplier = float64(r.BackoffMultiplier)
	cfg.MaxDelay = time.Duration(r.MaxDelayMS) * time.Millisecond
	cfg.JitterMax = time.Duration(r.JitterMaxMS) * time.Millisecond
	return cfg
}

// ToCircuitConfig converts the YAML-loaded CircuitConfig into the
// circuit.Config the breaker expects. FailureRatio is fixed at 0.5 and
// RollingWindow at one minute; only the failure threshold and break
// duration are operator-tunable.
func (c CircuitConfig) ToCircuitConfig() circuit.Config {
	return circuit.Config{
		MinimumThroughput: uint32(c.FailureThreshold),
		FailureRatio:      0.5,
		RollingWindow:     time.Minute,
		BreakDuration:     time.Duration(c.TimeoutMS) * time.Millisecond,
	}
}

// RateLimitScopeConfigs converts the YAML-loaded Limits map into the
// ratelimit.ScopeConfig map ratelimit.New expects, falling back to
// ratelimit.DefaultScopeConfigs for any scope not present in the file.
func (c *Config) RateLimitScopeConfigs() map[ratelimit.Scope]ratelimit.ScopeConfig {
	out := ratelimit.DefaultScopeConfigs()
	for name, lim := range c.Limits {
		out[ratelimit.Scope(name)] = ratelimit.ScopeConfig{Limit: lim.Limit, Window: lim.Window()}
	}
	return out
}

// Default returns a Config with sensible defaults for every field except
// Exchange and Auth, which callers must always supply.
func Default() Config {
	return Config{
		Retry: RetryConfig{
			MaxAttempts:       3,
			BaseDelayMS:       1000,
			BackoffMultiplier: 2,
			MaxDelayMS:        30000,
			JitterMaxMS:       250,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			TimeoutMS:        30000,
			HalfOpenMaxCalls: 1,
		},
		Cache: CacheConfig{
			MaxEntries:    10000,
			TickerTTLSecs: 5,
		},
	}
}
