// Package retry implements the caller-side policy for re-resolving deferred
// schedules after transient failures.
//
// The resolver reports each outcome once and never retries. Policy decides
// what to do with that outcome: wait out a rate limit, follow a redirect to
// its Location, back off after a network failure, or give up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-deferred/internal/domain"
	"github.com/ahrav/go-deferred/internal/resolver"
	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
)

// ErrRedirectLimit is the cause attached when MaxRedirects is exceeded.
var ErrRedirectLimit = errors.New("redirect limit exceeded")

// Resolver performs single resolution attempts. *resolver.Resolver satisfies it.
type Resolver interface {
	Await(ctx context.Context, req *domain.ResolutionRequest) resolver.Result
}

// Policy repeatedly resolves a request until it succeeds, fails permanently,
// or exhausts MaxAttempts or MaxElapsedTime.
type Policy struct {
	resolver Resolver
	config   configuration.RetryConfig
	logger   *slog.Logger
}

// NewPolicy validates cfg and returns a Policy over r.
func NewPolicy(r Resolver, cfg configuration.RetryConfig) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Policy{
		resolver: r,
		config:   cfg,
		logger:   slog.Default().With("component", "retry"),
	}, nil
}

// Resolve resolves req, retrying per the policy. The last outcome is returned
// when retrying stops. If ctx ends while waiting, a NetworkFailure wrapping the
// context error is returned.
func (p *Policy) Resolve(ctx context.Context, req *domain.ResolutionRequest) resolver.Result {
	start := time.Now()
	current := req
	redirects := 0

	for attempt := 1; ; attempt++ {
		res := p.resolver.Await(ctx, current)
		if res.Err == nil {
			return res
		}
		if attempt >= p.config.MaxAttempts {
			p.logger.Debug("retry attempts exhausted", "attempts", attempt, "kind", res.Err.Kind)
			return res
		}

		delay, next, ok, cause := p.plan(attempt, res.Err, current, &redirects)
		if !ok {
			if cause != nil {
				e := *res.Err
				e.Message = cause.Error()
				e.Cause = cause
				res.Err = &e
			}
			return res
		}

		if p.config.MaxElapsedTime > 0 && time.Since(start)+delay > p.config.MaxElapsedTime {
			p.logger.Debug("retry time budget exhausted",
				"attempts", attempt, "kind", res.Err.Kind, "delay", delay)
			return res
		}

		p.logger.Debug("retrying deferred resolution",
			"attempt", attempt,
			"kind", res.Err.Kind,
			"delay", delay,
			"host", next.URL().Host,
		)

		if err := wait(ctx, delay); err != nil {
			return resolver.Result{Err: reserrors.Wrap(reserrors.KindNetworkFailure, err)}
		}
		current = next
	}
}

// plan decides the delay and request for the next attempt. ok is false when
// the outcome should be returned as is; cause explains a stop the server did
// not report.
func (p *Policy) plan(
	attempt int, resErr *reserrors.ResolutionError, current *domain.ResolutionRequest, redirects *int,
) (delay time.Duration, next *domain.ResolutionRequest, ok bool, cause error) {
	switch resErr.Kind {
	case reserrors.KindTooManyRequests:
		if resErr.RetryAfter > 0 {
			return resErr.RetryAfter, current, true, nil
		}
		return ExponentialBackoff(attempt, p.config), current, true, nil

	case reserrors.KindTemporaryRedirect:
		if resErr.Location == "" {
			return ExponentialBackoff(attempt, p.config), current, true, nil
		}
		*redirects++
		if *redirects > p.config.MaxRedirects {
			return 0, nil, false, fmt.Errorf("%w after %d redirects", ErrRedirectLimit, p.config.MaxRedirects)
		}
		next, err := current.WithLocation(resErr.Location)
		if err != nil {
			return 0, nil, false, fmt.Errorf("invalid redirect location: %w", err)
		}
		return resErr.RetryAfter, next, true, nil

	case reserrors.KindMissingAuthToken, reserrors.KindNetworkFailure:
		return ExponentialBackoff(attempt, p.config), current, true, nil

	default:
		return 0, nil, false, nil
	}
}

// wait sleeps for d or until ctx ends.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
