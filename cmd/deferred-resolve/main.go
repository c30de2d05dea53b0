// Command deferred-resolve resolves one deferred schedule and prints the
// classified outcome as JSON.
//
// Exit codes: 0 resolved, 1 classified resolution error, 2 usage or configuration error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-deferred/internal/domain"
	"github.com/ahrav/go-deferred/internal/resolver"
	"github.com/ahrav/go-deferred/internal/resolver/auth"
	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	"github.com/ahrav/go-deferred/internal/resolver/resilience"
	"github.com/ahrav/go-deferred/internal/resolver/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFn(code)
}

var (
	exitFn     = os.Exit
	registerer = prometheus.DefaultRegisterer
)

type errorOutput struct {
	Kind              string  `json:"kind"`
	StatusCode        int     `json:"status_code,omitempty"`
	Message           string  `json:"message"`
	RetryAfterSeconds float64 `json:"retry_after_seconds,omitempty"`
	Location          string  `json:"location,omitempty"`
}

type output struct {
	Resolved bool             `json:"resolved"`
	Decision *domain.Decision `json:"decision,omitempty"`
	Error    *errorOutput     `json:"error,omitempty"`
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("deferred-resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	endpoint := fs.String("url", "", "deferred schedule endpoint URL")
	channelID := fs.String("channel", "", "channel ID to resolve for")
	configPath := fs.String("config", "", "YAML configuration file")
	token := fs.String("token", os.Getenv("DEFERRED_AUTH_TOKEN"), "static bearer token, overrides auth.token_url")
	triggerType := fs.String("trigger-type", "", "trigger type that fired")
	goal := fs.Float64("goal", 1, "trigger goal")
	event := fs.String("event", "", "trigger event as JSON")
	locale := fs.String("locale", "", "BCP 47 locale sent as state override")
	appVersion := fs.String("app-version", "", "app version sent as state override")
	useRetry := fs.Bool("retry", false, "apply the configured retry policy")
	timeout := fs.Duration("timeout", time.Minute, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *endpoint == "" || *channelID == "" {
		fmt.Fprintln(stderr, "-url and -channel are required")
		fs.Usage()
		return 2
	}

	cfg := configuration.DefaultConfig()
	if *configPath != "" {
		loaded, err := configuration.Load(*configPath)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
		cfg = loaded
	}
	slog.SetDefault(cfg.Observability.NewLogger(stderr))

	params := domain.ResolutionParams{URL: *endpoint, ChannelID: *channelID}
	if *triggerType != "" {
		tc := &domain.TriggerContext{TriggerType: *triggerType, Goal: *goal}
		if *event != "" {
			if !json.Valid([]byte(*event)) {
				fmt.Fprintln(stderr, "-event must be valid JSON")
				return 2
			}
			tc.Event = json.RawMessage(*event)
		}
		params.TriggerContext = tc
	}
	req, err := domain.NewResolutionRequest(params)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	state := domain.StateOverrides{AppVersion: *appVersion, SDKVersion: cfg.Request.SDKVersion}
	if *locale != "" {
		state, err = state.WithLocale(*locale)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
	}

	tokens, closeTokens, err := auth.FromConfig(ctx, cfg.Auth, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	defer func() { _ = closeTokens() }()

	deps := resolver.Dependencies{
		Tokens:         tokens,
		StateOverrides: domain.StaticStateOverrides(state),
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = resilience.NewPrometheusMetrics(cfg.Observability.MetricsNamespace, registerer)
	}
	r, err := resolver.NewWithDependencies(cfg, deps)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Close(closeCtx)
	}()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var res resolver.Result
	if *useRetry {
		policy, err := retry.NewPolicy(r, cfg.Retry)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
		res = policy.Resolve(ctx, req)
	} else {
		res = r.Await(ctx, req)
	}

	return report(stdout, stderr, res)
}

func report(stdout io.Writer, stderr io.Writer, res resolver.Result) int {
	out := output{Resolved: res.Resolved(), Decision: res.Decision}
	if res.Err != nil {
		out.Error = &errorOutput{
			Kind:              string(res.Err.Kind),
			StatusCode:        res.Err.StatusCode,
			Message:           res.Err.Message,
			RetryAfterSeconds: res.Err.RetryAfter.Seconds(),
			Location:          res.Err.Location,
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(stderr, "failed to write result:", err)
		return 1
	}
	if out.Resolved {
		return 0
	}
	return 1
}
