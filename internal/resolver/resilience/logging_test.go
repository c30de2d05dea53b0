package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-deferred/internal/domain"
	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
	"github.com/ahrav/go-deferred/internal/resolver/transport"
)

type metricCall struct {
	kind  string
	name  string
	tags  map[string]string
	value float64
}

type recordingMetrics struct {
	mu    sync.Mutex
	calls []metricCall
}

func (r *recordingMetrics) record(kind, name string, tags map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, metricCall{kind: kind, name: name, tags: tags, value: value})
}

func (r *recordingMetrics) IncrementCounter(name string, tags map[string]string, value float64) {
	r.record("counter", name, tags, value)
}

func (r *recordingMetrics) RecordHistogram(name string, tags map[string]string, value float64) {
	r.record("histogram", name, tags, value)
}

func (r *recordingMetrics) SetGauge(name string, tags map[string]string, value float64) {
	r.record("gauge", name, tags, value)
}

func (r *recordingMetrics) find(name string) []metricCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []metricCall
	for _, c := range r.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func newRequest(t *testing.T) *transport.Request {
	t.Helper()
	res, err := domain.NewResolutionRequest(domain.ResolutionParams{
		URL:       "https://remote-data.example.com/api/remote-data",
		ChannelID: "channel-abc",
	})
	require.NoError(t, err)
	return &transport.Request{Resolution: res, Token: "super-secret-token"}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLoggingMiddleware_Success(t *testing.T) {
	var buf bytes.Buffer
	metrics := &recordingMetrics{}
	mw := NewLoggingMiddleware(configuration.ObservabilityConfig{}, newTestLogger(&buf), metrics)

	var seenID string
	next := transport.HandlerFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		seenID = req.RequestID
		return &transport.Response{
			StatusCode: http.StatusOK,
			Decision:   &domain.Decision{AudienceMatch: true},
			Latency:    time.Millisecond,
		}, nil
	})

	_, err := mw(next).Handle(context.Background(), newRequest(t))
	require.NoError(t, err)

	assert.NotEmpty(t, seenID, "request ID assigned before the call")
	assert.Contains(t, buf.String(), "deferred resolution completed")
	assert.Contains(t, buf.String(), "channel-abc")
	assert.NotContains(t, buf.String(), "super-secret-token")

	require.Len(t, metrics.find(MetricRequestsTotal), 1)
	require.Len(t, metrics.find(MetricRequestDuration), 1)
	decisions := metrics.find(MetricDecisionsTotal)
	require.Len(t, decisions, 1)
	assert.Equal(t, "true", decisions[0].tags["audience_match"])
	assert.Equal(t, "remote-data.example.com", decisions[0].tags["host"])
}

func TestLoggingMiddleware_KeepsExistingRequestID(t *testing.T) {
	mw := NewLoggingMiddleware(configuration.ObservabilityConfig{}, newTestLogger(&bytes.Buffer{}), nil)
	req := newRequest(t)
	req.RequestID = "fixed-id"

	var seenID string
	next := transport.HandlerFunc(func(_ context.Context, r *transport.Request) (*transport.Response, error) {
		seenID = r.RequestID
		return &transport.Response{StatusCode: http.StatusOK, Decision: &domain.Decision{}}, nil
	})
	_, err := mw(next).Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", seenID)
}

func TestLoggingMiddleware_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  string
		wantLevel string
		wantRetry bool
	}{
		{
			name:      "rate_limited",
			err:       &reserrors.ResolutionError{Kind: reserrors.KindTooManyRequests, StatusCode: 429, RetryAfter: 30 * time.Second},
			wantKind:  "too_many_requests",
			wantLevel: "INFO",
			wantRetry: true,
		},
		{
			name:      "conflict",
			err:       &reserrors.ResolutionError{Kind: reserrors.KindRequestConflict, StatusCode: 409},
			wantKind:  "request_conflict",
			wantLevel: "WARN",
		},
		{
			name:      "unclassified",
			err:       assert.AnError,
			wantKind:  "unknown",
			wantLevel: "WARN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			metrics := &recordingMetrics{}
			mw := NewLoggingMiddleware(configuration.ObservabilityConfig{}, newTestLogger(&buf), metrics)

			next := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
				return nil, tt.err
			})
			_, err := mw(next).Handle(context.Background(), newRequest(t))
			require.ErrorIs(t, err, tt.err)

			var failed map[string]any
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(line), &entry))
				if entry["msg"] == "deferred resolution failed" {
					failed = entry
				}
			}
			require.NotNil(t, failed)
			assert.Equal(t, tt.wantKind, failed["kind"])
			assert.Equal(t, tt.wantLevel, failed["level"])

			errs := metrics.find(MetricErrorsTotal)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantKind, errs[0].tags["kind"])
			assert.Equal(t, tt.wantRetry, len(metrics.find(MetricRetryAfter)) == 1)
		})
	}
}

func TestLoggingMiddleware_RedactsChannelIDs(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(configuration.ObservabilityConfig{RedactChannelIDs: true}, newTestLogger(&buf), nil)

	next := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: http.StatusOK, Decision: &domain.Decision{}}, nil
	})
	_, err := mw(next).Handle(context.Background(), newRequest(t))
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "channel-abc")
	assert.Contains(t, buf.String(), "channel_id")
}
