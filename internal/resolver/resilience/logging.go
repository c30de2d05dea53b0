package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
	"github.com/ahrav/go-deferred/internal/resolver/transport"
)

// LoggingMiddleware records the lifecycle of each resolution as structured
// logs and metrics. Tokens are never logged.
type LoggingMiddleware struct {
	logger  *slog.Logger
	metrics Metrics
	config  configuration.ObservabilityConfig
}

// NewLoggingMiddleware creates the observability middleware. Nil logger and
// metrics fall back to slog.Default and NoOpMetrics.
func NewLoggingMiddleware(config configuration.ObservabilityConfig, logger *slog.Logger, metrics Metrics) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}

	lm := &LoggingMiddleware{
		logger:  logger.With("component", "resolver"),
		metrics: metrics,
		config:  config,
	}
	return lm.Middleware()
}

// Middleware assigns a request ID when missing, then logs and measures the call.
func (m *LoggingMiddleware) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if req.RequestID == "" {
				req.RequestID = uuid.New().String()
			}
			host := req.Resolution.URL().Host
			baseTags := map[string]string{"host": host}

			m.logger.DebugContext(ctx, "deferred resolution started",
				"request_id", req.RequestID,
				"host", host,
				"channel_id", m.channel(req.Resolution.ChannelID()),
			)
			m.metrics.IncrementCounter(MetricRequestsTotal, baseTags, 1)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			m.metrics.RecordHistogram(MetricRequestDuration, baseTags, float64(duration.Milliseconds()))

			if err != nil {
				m.handleError(ctx, req, err, duration, host)
			} else if resp != nil {
				m.handleSuccess(ctx, req, resp, duration, host)
			}
			return resp, err
		})
	}
}

func (m *LoggingMiddleware) handleError(ctx context.Context, req *transport.Request, err error, duration time.Duration, host string) {
	kind := "unknown"
	status := 0
	var retryAfter time.Duration
	var resErr *reserrors.ResolutionError
	if errors.As(err, &resErr) {
		kind = string(resErr.Kind)
		status = resErr.StatusCode
		retryAfter = resErr.RetryAfter
	}

	fields := []any{
		"request_id", req.RequestID,
		"host", host,
		"channel_id", m.channel(req.Resolution.ChannelID()),
		"kind", kind,
		"status_code", status,
		"duration_ms", duration.Milliseconds(),
		"error", err,
	}
	if retryAfter > 0 {
		fields = append(fields, "retry_after_seconds", retryAfter.Seconds())
	}

	// Rate limiting and redirects are expected flow control, not failures.
	level := slog.LevelWarn
	if resErr != nil && (resErr.Kind == reserrors.KindTooManyRequests || resErr.Kind == reserrors.KindTemporaryRedirect) {
		level = slog.LevelInfo
	}
	m.logger.Log(ctx, level, "deferred resolution failed", fields...)

	tags := map[string]string{"host": host, "kind": kind, "status": strconv.Itoa(status)}
	m.metrics.IncrementCounter(MetricErrorsTotal, tags, 1)
	if retryAfter > 0 {
		m.metrics.RecordHistogram(MetricRetryAfter, map[string]string{"host": host}, retryAfter.Seconds())
	}
}

func (m *LoggingMiddleware) handleSuccess(ctx context.Context, req *transport.Request, resp *transport.Response, duration time.Duration, host string) {
	match := resp.Decision != nil && resp.Decision.AudienceMatch

	m.logger.InfoContext(ctx, "deferred resolution completed",
		"request_id", req.RequestID,
		"host", host,
		"channel_id", m.channel(req.Resolution.ChannelID()),
		"status_code", resp.StatusCode,
		"audience_match", match,
		"duration_ms", duration.Milliseconds(),
	)
	m.metrics.IncrementCounter(MetricDecisionsTotal,
		map[string]string{"host": host, "audience_match": strconv.FormatBool(match)}, 1)
}

// channel returns the channel ID for logging, hashed when redaction is on.
func (m *LoggingMiddleware) channel(id string) string {
	if !m.config.RedactChannelIDs {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}
