// Package configuration holds the settings for the deferred resolution client.
package configuration

import (
	"net/http"
	"time"
)

// Config holds the full configuration for the deferred resolution client.
type Config struct {
	// HTTP client configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Outbound request shaping
	Request RequestConfig `json:"request" yaml:"request"`

	// Auth token caching
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Optional client-side rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Caller-side retry policy
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Observability configuration
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// HTTPConfig controls the default request executor. HTTPClient overrides it entirely.
type HTTPConfig struct {
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	MaxIdleConns     int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	IdleConnTimeout  time.Duration `json:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	TLSTimeout       time.Duration `json:"tls_timeout" yaml:"tls_timeout"`
	MaxResponseBytes int64         `json:"max_response_bytes" yaml:"max_response_bytes"`
	HTTPClient       *http.Client  `json:"-" yaml:"-"`
}

// RequestConfig controls headers and body fields added to every resolution.
type RequestConfig struct {
	Platform   string            `json:"platform" yaml:"platform"`
	Accept     string            `json:"accept" yaml:"accept"`
	SDKVersion string            `json:"sdk_version" yaml:"sdk_version"`
	UserAgent  string            `json:"user_agent" yaml:"user_agent"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
}

// AuthConfig controls where auth.Manager fetches tokens and how it caches them.
type AuthConfig struct {
	// TokenURL is the token authority endpoint. Tokens are fetched from it when set.
	TokenURL string `json:"token_url" yaml:"token_url"`

	// Credential is sent as the bearer credential when fetching tokens.
	Credential string `json:"-" yaml:"credential"` // Sensitive

	// FetchTimeout bounds a single token fetch.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`

	// ExpiryLeeway treats tokens as expired this long before their real expiry.
	ExpiryLeeway time.Duration `json:"expiry_leeway" yaml:"expiry_leeway"`

	// RedisAddr enables the Redis token store when set.
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `json:"-" yaml:"redis_password"` // Sensitive
	RedisDB       int           `json:"redis_db" yaml:"redis_db"`
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix"`
	DialTimeout   time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// RateLimitConfig controls the per-channel token bucket.
type RateLimitConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	TokensPerSecond float64 `json:"tokens_per_second" yaml:"tokens_per_second"`
	BurstSize       int     `json:"burst_size" yaml:"burst_size"`
}

// RetryConfig controls the caller-side re-resolution policy.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`         // Total attempts including the first
	MaxElapsedTime  time.Duration `json:"max_elapsed_time" yaml:"max_elapsed_time"` // Total time budget, 0 = unbounded
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"` // Starting backoff duration
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`         // Maximum backoff duration
	Multiplier      float64       `json:"multiplier" yaml:"multiplier"`             // Exponential backoff multiplier
	UseJitter       bool          `json:"use_jitter" yaml:"use_jitter"`             // Enable full jitter randomization
	MaxRedirects    int           `json:"max_redirects" yaml:"max_redirects"`       // Redirects followed per call
}

// ObservabilityConfig controls logging and metrics.
type ObservabilityConfig struct {
	MetricsEnabled   bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsNamespace string `json:"metrics_namespace" yaml:"metrics_namespace"`
	LogLevel         string `json:"log_level" yaml:"log_level"`
	LogFormat        string `json:"log_format" yaml:"log_format"`
	RedactChannelIDs bool   `json:"redact_channel_ids" yaml:"redact_channel_ids"`
}
