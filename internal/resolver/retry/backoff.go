package retry

import (
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
)

// ExponentialBackoff returns the delay before retrying after attempt, growing
// by Multiplier from InitialInterval and capped at MaxInterval. With UseJitter
// the delay is drawn uniformly from [0, backoff] (full jitter).
// Returns zero for non-positive attempt numbers.
func ExponentialBackoff(attempt int, config configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := config.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	multiplier := config.Multiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * multiplier)
		if config.MaxInterval > 0 && backoff > config.MaxInterval {
			backoff = config.MaxInterval
			break
		}
	}

	if config.UseJitter {
		jitterMs := rand.Int64N(backoff.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
		return time.Duration(jitterMs) * time.Millisecond
	}
	return backoff
}
