// Package resolver resolves deferred schedules against a remote decision service.
//
// A Resolver performs one network round trip per call and reports exactly one
// typed outcome: a Decision, or a *errors.ResolutionError whose Kind tells the
// caller how to react (wait, follow a redirect, give up). The Resolver itself
// never retries; see package retry for a caller-side policy.
//
// Architecture:
//   - Completion callbacks run on a serial Dispatcher, never on the caller's goroutine
//   - Middleware chain: logging and metrics, client-side rate limit, auth token, HTTP core
//   - Redirects are reported, not followed
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ahrav/go-deferred/internal/domain"
	"github.com/ahrav/go-deferred/internal/resolver/auth"
	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	"github.com/ahrav/go-deferred/internal/resolver/dispatch"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
	"github.com/ahrav/go-deferred/internal/resolver/ratelimit"
	"github.com/ahrav/go-deferred/internal/resolver/resilience"
	"github.com/ahrav/go-deferred/internal/resolver/transport"
)

// ErrNoTokenSupplier is returned when a Resolver is constructed without a token supplier.
var ErrNoTokenSupplier = errors.New("token supplier is required")

// Result is the outcome of one resolution. Exactly one field is set.
type Result struct {
	Decision *domain.Decision
	Err      *reserrors.ResolutionError
}

// Resolved reports whether the result carries a decision.
func (r Result) Resolved() bool { return r.Err == nil && r.Decision != nil }

// Dependencies overrides the collaborators a Resolver would otherwise build from config.
// Tokens is required; every other field falls back to a default.
type Dependencies struct {
	Executor       transport.Executor
	Dispatcher     dispatch.Dispatcher
	Tokens         auth.TokenSupplier
	StateOverrides func() domain.StateOverrides
	Logger         *slog.Logger
	Metrics        resilience.Metrics
}

// Resolver resolves deferred schedules. It is safe for concurrent use.
type Resolver struct {
	config         *configuration.Config
	handler        transport.Handler
	dispatcher     dispatch.Dispatcher
	stateOverrides func() domain.StateOverrides
	logger         *slog.Logger

	// Owned resources released by Close.
	serial  *dispatch.Serial
	limiter *ratelimit.Limiter

	inflight sync.WaitGroup
}

// New creates a Resolver with the production executor, its own serial
// dispatcher, and middleware enabled by cfg. A nil cfg uses DefaultConfig.
func New(cfg *configuration.Config, tokens auth.TokenSupplier) (*Resolver, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}

	deps := Dependencies{Tokens: tokens}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = resilience.NewPrometheusMetrics(cfg.Observability.MetricsNamespace, nil)
	}
	return NewWithDependencies(cfg, deps)
}

// NewWithDependencies creates a Resolver using the supplied collaborators.
func NewWithDependencies(cfg *configuration.Config, deps Dependencies) (*Resolver, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tokens == nil {
		return nil, ErrNoTokenSupplier
	}

	r := &Resolver{
		config:         cfg,
		dispatcher:     deps.Dispatcher,
		stateOverrides: deps.StateOverrides,
		logger:         deps.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.dispatcher == nil {
		r.serial = dispatch.NewSerial()
		r.dispatcher = r.serial
	}

	exec := deps.Executor
	if exec == nil {
		exec = executorFromConfig(cfg.HTTP)
	}
	coreHandler := transport.NewHTTPHandler(exec, cfg.Request, cfg.HTTP.MaxResponseBytes)

	middlewares := []transport.Middleware{
		resilience.NewLoggingMiddleware(cfg.Observability, r.logger, deps.Metrics),
	}
	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.New(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		limiter.Start()
		r.limiter = limiter
		middlewares = append(middlewares, limiter.Middleware())
	}
	middlewares = append(middlewares, auth.Middleware(deps.Tokens))

	r.handler = transport.Chain(coreHandler, middlewares...)
	return r, nil
}

// executorFromConfig returns the configured client, or a default one, with
// redirect following disabled.
func executorFromConfig(cfg configuration.HTTPConfig) transport.Executor {
	if cfg.HTTPClient == nil {
		return transport.NewHTTPClient(cfg)
	}
	c := *cfg.HTTPClient
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// Resolve starts resolving req and returns immediately. completion is invoked
// exactly once on the dispatcher with the outcome, unless the returned cancel
// func is called first, in which case the in-flight request is aborted and
// completion is never invoked.
func (r *Resolver) Resolve(ctx context.Context, req *domain.ResolutionRequest, completion func(Result)) (cancel func()) {
	ctx, cancelCtx := context.WithCancel(ctx)

	var (
		once      sync.Once
		cancelled atomic.Bool
	)
	deliver := func(res Result) {
		once.Do(func() {
			r.dispatcher.Dispatch(func() {
				if cancelled.Load() || completion == nil {
					return
				}
				completion(res)
			})
		})
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer cancelCtx()
		deliver(r.execute(ctx, req))
	}()

	return func() {
		cancelled.Store(true)
		cancelCtx()
	}
}

// Await resolves req and blocks until the outcome has been delivered through
// the dispatcher or ctx ends. It must not be called from a task running on the
// Resolver's dispatcher.
func (r *Resolver) Await(ctx context.Context, req *domain.ResolutionRequest) Result {
	done := make(chan Result, 1)
	cancel := r.Resolve(ctx, req, func(res Result) { done <- res })

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		cancel()
		return Result{Err: reserrors.Wrap(reserrors.KindNetworkFailure, ctx.Err())}
	}
}

// execute runs req through the pipeline and converts the outcome into a Result.
func (r *Resolver) execute(ctx context.Context, req *domain.ResolutionRequest) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic during deferred resolution", "component", "resolver", "panic", p)
			res = Result{Err: reserrors.Wrap(reserrors.KindNetworkFailure, fmt.Errorf("panic: %v", p))}
		}
	}()

	if req == nil {
		return Result{Err: reserrors.Wrap(reserrors.KindNetworkFailure, domain.ErrInvalidRequest)}
	}

	treq := &transport.Request{Resolution: req}
	if r.stateOverrides != nil {
		state := r.stateOverrides()
		treq.StateOverrides = &state
	}

	resp, err := r.handler.Handle(ctx, treq)
	if err != nil {
		return Result{Err: reserrors.Classify(err)}
	}
	if resp == nil || resp.Decision == nil {
		return Result{Err: reserrors.New(reserrors.KindInvalidResponse, "empty decision")}
	}
	return Result{Decision: resp.Decision}
}

// Close waits for in-flight resolutions to deliver their results, then
// releases owned resources. Resolve must not be called after Close.
func (r *Resolver) Close(ctx context.Context) error {
	waited := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.limiter != nil {
		r.limiter.Stop()
	}
	if r.serial != nil {
		return r.serial.Close(ctx)
	}
	return nil
}
