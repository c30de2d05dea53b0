// Package ratelimit throttles resolutions per channel on the client side.
//
// Each channel gets its own token bucket. A request that finds the bucket
// empty fails fast with a TooManyRequests error carrying a local retry delay,
// without any network call. A server 429 with Retry-After also blocks the
// channel locally until that delay has passed.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
	"github.com/ahrav/go-deferred/internal/resolver/transport"
)

// Cleanup and lifecycle constants.
const (
	// CleanupInterval determines the frequency of stale limiter cleanup.
	CleanupInterval = 10 * time.Minute

	// LimiterTTLMultiplier scales the bucket refill time to get the minimum
	// idle time before a limiter may be removed.
	LimiterTTLMultiplier = 10

	// minRetryAfter keeps callers out of tight retry loops.
	minRetryAfter = time.Second
)

// Validation errors.
var (
	ErrInvalidRate  = errors.New("tokens per second must be positive")
	ErrInvalidBurst = errors.New("burst size must be positive")
)

// timedLimiter wraps a channel's bucket with its last use and any server imposed block.
type timedLimiter struct {
	limiter *rate.Limiter
	// lastUsed is a Unix nanosecond timestamp.
	lastUsed atomic.Int64
	// blockedUntil is a Unix nanosecond timestamp set from server Retry-After.
	blockedUntil atomic.Int64
}

// Limiter is a per-channel token bucket limiter. All methods are safe for concurrent use.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*timedLimiter
	config   configuration.RateLimitConfig
	minTTL   time.Duration
	now      func() time.Time

	cleanupMu   sync.Mutex
	cleanupStop chan struct{}
	cleanupDone sync.WaitGroup

	logger *slog.Logger
}

// New creates a Limiter from cfg. The background cleanup is not started; call Start.
func New(cfg configuration.RateLimitConfig) (*Limiter, error) {
	if cfg.TokensPerSecond <= 0 {
		return nil, fmt.Errorf("%w, got %v", ErrInvalidRate, cfg.TokensPerSecond)
	}
	if cfg.BurstSize <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidBurst, cfg.BurstSize)
	}

	refill := time.Duration(float64(cfg.BurstSize) / cfg.TokensPerSecond * float64(time.Second))
	minTTL := refill * LimiterTTLMultiplier
	if minTTL < CleanupInterval {
		minTTL = CleanupInterval
	}

	return &Limiter{
		limiters: make(map[string]*timedLimiter),
		config:   cfg,
		minTTL:   minTTL,
		now:      time.Now,
		logger:   slog.Default().With("component", "ratelimit"),
	}, nil
}

// Middleware returns the rate limiting middleware.
func (l *Limiter) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			channelID := req.Resolution.ChannelID()
			if err := l.Allow(channelID); err != nil {
				return nil, err
			}

			resp, err := next.Handle(ctx, req)

			var resErr *reserrors.ResolutionError
			if errors.As(err, &resErr) && resErr.Kind == reserrors.KindTooManyRequests && resErr.RetryAfter > 0 {
				l.Block(channelID, resErr.RetryAfter)
			}
			return resp, err
		})
	}
}

// Allow takes a token for channelID. It returns a TooManyRequests
// *reserrors.ResolutionError when the channel is blocked or its bucket is empty.
func (l *Limiter) Allow(channelID string) error {
	tl := l.getOrCreate(channelID)
	now := l.now()

	if until := tl.blockedUntil.Load(); until > now.UnixNano() {
		return l.limitedError(time.Duration(until - now.UnixNano()))
	}

	if tl.limiter.AllowN(now, 1) {
		return nil
	}

	// Compute the delay without consuming a token.
	reservation := tl.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return l.limitedError(delay)
}

// Block rejects requests for channelID for d.
func (l *Limiter) Block(channelID string, d time.Duration) {
	tl := l.getOrCreate(channelID)
	until := l.now().Add(d).UnixNano()
	for {
		cur := tl.blockedUntil.Load()
		if cur >= until || tl.blockedUntil.CompareAndSwap(cur, until) {
			return
		}
	}
}

func (l *Limiter) limitedError(delay time.Duration) *reserrors.ResolutionError {
	retryAfter := time.Duration(math.Ceil(delay.Seconds())) * time.Second
	if retryAfter < minRetryAfter {
		retryAfter = minRetryAfter
	}
	e := reserrors.New(reserrors.KindTooManyRequests, "client side rate limit exceeded")
	e.RetryAfter = retryAfter
	return e
}

// getOrCreate retrieves the channel's limiter using double-checked locking.
func (l *Limiter) getOrCreate(channelID string) *timedLimiter {
	now := l.now().UnixNano()

	l.mu.RLock()
	if tl, ok := l.limiters[channelID]; ok {
		// Touch under the read lock so CleanupStale cannot remove it first.
		tl.lastUsed.Store(now)
		l.mu.RUnlock()
		return tl
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if tl, ok := l.limiters[channelID]; ok {
		tl.lastUsed.Store(now)
		return tl
	}

	tl := &timedLimiter{limiter: rate.NewLimiter(rate.Limit(l.config.TokensPerSecond), l.config.BurstSize)}
	tl.lastUsed.Store(now)
	l.limiters[channelID] = tl
	return tl
}

// CleanupStale removes limiters idle since before minus the minimum TTL.
// Limiters with an active block or without full capacity are kept so that
// cleanup never grants a throttled channel fresh tokens.
func (l *Limiter) CleanupStale(before time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := before.Add(-l.minTTL).UnixNano()
	removed := 0
	for key, tl := range l.limiters {
		if tl.lastUsed.Load() >= cutoff || tl.blockedUntil.Load() > before.UnixNano() {
			continue
		}
		if tl.limiter.TokensAt(before) < float64(l.config.BurstSize) {
			continue
		}
		delete(l.limiters, key)
		removed++
	}
	if removed > 0 {
		l.logger.Debug("removed stale limiters", "count", removed)
	}
	return removed
}

// Len returns the number of tracked channels.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// Start launches the periodic cleanup goroutine. Calling Start twice is a no-op.
func (l *Limiter) Start() {
	l.cleanupMu.Lock()
	defer l.cleanupMu.Unlock()
	if l.cleanupStop != nil {
		return
	}

	stop := make(chan struct{})
	l.cleanupStop = stop
	l.cleanupDone.Add(1)
	go func() {
		defer l.cleanupDone.Done()
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.CleanupStale(l.now())
			case <-stop:
				return
			}
		}
	}()
}

// Stop terminates the cleanup goroutine and waits for it to exit.
func (l *Limiter) Stop() {
	l.cleanupMu.Lock()
	defer l.cleanupMu.Unlock()
	if l.cleanupStop == nil {
		return
	}
	close(l.cleanupStop)
	l.cleanupDone.Wait()
	l.cleanupStop = nil
}
