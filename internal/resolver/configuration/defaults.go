package configuration

import (
	"time"
)

// HTTP and connection constants.
const (
	DefaultMaxIdleConns        = 100
	DefaultIdleTimeoutSeconds  = 90
	DefaultTLSTimeoutSeconds   = 10
	DefaultHTTPTimeoutSeconds  = 30
	DefaultMaxResponseBytes    = 1 << 20 // 1MB
	DefaultAccept              = "application/vnd.urbanairship+json; version=3;"
	DefaultPlatform            = "android"
	DefaultSDKVersion          = "16.11.3"
	DefaultUserAgent           = "go-deferred/" + DefaultSDKVersion
	DefaultMetricsNamespace    = "deferred_resolver"
	DefaultAuthKeyPrefix       = "deferred:auth:"
	DefaultAuthExpiryLeeway    = 30 * time.Second
	DefaultRedisDialTimeout    = 5 * time.Second
	DefaultAuthFetchTimeout    = 10 * time.Second
	DefaultRateLimitTokens     = 1
	DefaultRateLimitBurst      = 5
	DefaultRetryMaxAttempts    = 5
	DefaultRetryMaxElapsedTime = 5 * time.Minute
	DefaultRetryInitial        = 1 * time.Second
	DefaultRetryMaxInterval    = 60 * time.Second
	DefaultRetryMultiplier     = 2.0
	DefaultRetryMaxRedirects   = 3
)

// DefaultConfig returns a configuration suitable for production use.
// Client-side rate limiting and metrics are off unless enabled explicitly.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:          DefaultHTTPTimeoutSeconds * time.Second,
			MaxIdleConns:     DefaultMaxIdleConns,
			IdleConnTimeout:  DefaultIdleTimeoutSeconds * time.Second,
			TLSTimeout:       DefaultTLSTimeoutSeconds * time.Second,
			MaxResponseBytes: DefaultMaxResponseBytes,
		},
		Request: RequestConfig{
			Platform:   DefaultPlatform,
			Accept:     DefaultAccept,
			SDKVersion: DefaultSDKVersion,
			UserAgent:  DefaultUserAgent,
		},
		Auth: AuthConfig{
			ExpiryLeeway: DefaultAuthExpiryLeeway,
			FetchTimeout: DefaultAuthFetchTimeout,
			KeyPrefix:    DefaultAuthKeyPrefix,
			DialTimeout:  DefaultRedisDialTimeout,
		},
		RateLimit: RateLimitConfig{
			Enabled:         false,
			TokensPerSecond: DefaultRateLimitTokens,
			BurstSize:       DefaultRateLimitBurst,
		},
		Retry: RetryConfig{
			MaxAttempts:     DefaultRetryMaxAttempts,
			MaxElapsedTime:  DefaultRetryMaxElapsedTime,
			InitialInterval: DefaultRetryInitial,
			MaxInterval:     DefaultRetryMaxInterval,
			Multiplier:      DefaultRetryMultiplier,
			UseJitter:       true,
			MaxRedirects:    DefaultRetryMaxRedirects,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled:   false,
			MetricsNamespace: DefaultMetricsNamespace,
			LogLevel:         "info",
			LogFormat:        "json",
			RedactChannelIDs: false,
		},
	}
}
