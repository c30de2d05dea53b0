package configuration

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")

	errHTTPTimeoutInvalid     = errors.New("http.timeout must be >= 0")
	errMaxResponseBytes       = errors.New("http.max_response_bytes must be > 0")
	errPlatformRequired       = errors.New("request.platform is required")
	errSDKVersionInvalid      = errors.New("request.sdk_version must be a semantic version")
	errRateLimitInvalid       = errors.New("rate_limit.tokens_per_second and burst_size must be > 0 when enabled")
	errRetryAttemptsInvalid   = errors.New("retry.max_attempts must be greater than 0")
	errRetryIntervalInvalid   = errors.New("retry.initial_interval must be greater than 0")
	errRetryMaxInterval       = errors.New("retry.max_interval must be >= initial_interval")
	errRetryMultiplierInvalid = errors.New("retry.multiplier must be >= 1.0")
	errLogLevelInvalid        = errors.New("observability.log_level must be one of debug, info, warn, error")
	errTokenURLInvalid        = errors.New("auth.token_url must be an absolute http or https URL")
	errFetchTimeoutInvalid    = errors.New("auth.fetch_timeout must be > 0")
)

// Load reads a YAML configuration file on top of DefaultConfig.
// Environment variables in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(raw))))
}

// Parse decodes YAML configuration on top of DefaultConfig and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	normalized := strings.ReplaceAll(string(data), "\r\n", "\n")
	if err := yaml.Unmarshal([]byte(normalized), cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("%w: %w, got %v", ErrInvalidConfig, errHTTPTimeoutInvalid, c.HTTP.Timeout)
	}
	if c.HTTP.MaxResponseBytes <= 0 {
		return fmt.Errorf("%w: %w, got %d", ErrInvalidConfig, errMaxResponseBytes, c.HTTP.MaxResponseBytes)
	}
	if c.Request.Platform == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errPlatformRequired)
	}
	if c.Request.SDKVersion != "" {
		if _, err := semver.StrictNewVersion(c.Request.SDKVersion); err != nil {
			return fmt.Errorf("%w: %w, got %q: %w", ErrInvalidConfig, errSDKVersionInvalid, c.Request.SDKVersion, err)
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.TokensPerSecond <= 0 || c.RateLimit.BurstSize <= 0) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errRateLimitInvalid)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Observability.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the token fetch settings. They only apply when TokenURL is set.
func (a AuthConfig) Validate() error {
	if a.TokenURL == "" {
		return nil
	}
	u, err := url.Parse(a.TokenURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w, got %q", errTokenURLInvalid, a.TokenURL)
	}
	if a.FetchTimeout <= 0 {
		return fmt.Errorf("%w, got %v", errFetchTimeoutInvalid, a.FetchTimeout)
	}
	return nil
}

// Validate checks the retry policy settings.
func (r RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errRetryAttemptsInvalid, r.MaxAttempts)
	}
	if r.InitialInterval <= 0 {
		return fmt.Errorf("%w, got %v", errRetryIntervalInvalid, r.InitialInterval)
	}
	if r.MaxInterval < r.InitialInterval {
		return fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v", errRetryMaxInterval, r.MaxInterval, r.InitialInterval)
	}
	if r.Multiplier < 1.0 {
		return fmt.Errorf("%w, got %f", errRetryMultiplierInvalid, r.Multiplier)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level. An empty level means info.
func (o ObservabilityConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(o.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w, got %q", errLogLevelInvalid, o.LogLevel)
	}
}

// NewLogger builds the slog logger described by the observability settings.
func (o ObservabilityConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := o.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(o.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
