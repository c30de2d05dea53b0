// Command deferred-worker runs a Temporal worker that resolves deferred
// schedules under the workflow retry policy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	"github.com/ahrav/go-deferred/internal/worker"
)

// DefaultTaskQueue is the task queue the worker polls when none is given.
const DefaultTaskQueue = "deferred-resolution"

func main() {
	exitFn(run(os.Args[1:], os.Stderr))
}

var exitFn = os.Exit

type options struct {
	hostPort    string
	namespace   string
	taskQueue   string
	configPath  string
	token       string
	metricsAddr string
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("deferred-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.hostPort, "temporal", envOrDefault("TEMPORAL_ADDRESS", client.DefaultHostPort), "Temporal frontend host:port")
	fs.StringVar(&opts.namespace, "namespace", envOrDefault("TEMPORAL_NAMESPACE", client.DefaultNamespace), "Temporal namespace")
	fs.StringVar(&opts.taskQueue, "task-queue", DefaultTaskQueue, "task queue to poll")
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.token, "token", os.Getenv("DEFERRED_AUTH_TOKEN"), "static bearer token, overrides auth.token_url")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.taskQueue == "" {
		return options{}, fmt.Errorf("-task-queue must not be empty")
	}
	return opts, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig(path string) (*configuration.Config, error) {
	if path == "" {
		return configuration.DefaultConfig(), nil
	}
	return configuration.Load(path)
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func run(args []string, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return 2
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	if opts.metricsAddr != "" {
		cfg.Observability.MetricsEnabled = true
	}
	logger := cfg.Observability.NewLogger(stderr)
	slog.SetDefault(logger)

	if opts.metricsAddr != "" {
		srv := newMetricsServer(opts.metricsAddr, prometheus.DefaultGatherer)
		go func() {
			logger.Info("starting metrics server", "addr", opts.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	r, shutdown, err := worker.InitializeResolver(context.Background(), cfg, opts.token)
	if err != nil {
		logger.Error("failed to initialize resolver", "error", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("resolver did not shut down cleanly", "error", err)
		}
	}()

	c, err := client.Dial(client.Options{
		HostPort:  opts.hostPort,
		Namespace: opts.namespace,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		logger.Error("failed to connect to Temporal", "host_port", opts.hostPort, "error", err)
		return 1
	}
	defer c.Close()

	w := sdkworker.New(c, opts.taskQueue, sdkworker.Options{})
	worker.RegisterAll(w, r, nil)

	logger.Info("worker starting", "task_queue", opts.taskQueue, "namespace", opts.namespace)
	if err := w.Run(sdkworker.InterruptCh()); err != nil {
		logger.Error("worker stopped", "error", err)
		return 1
	}
	return 0
}
