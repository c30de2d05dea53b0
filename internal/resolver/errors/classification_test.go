package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		status         int
		header         http.Header
		wantNil        bool
		wantKind       Kind
		wantRetryAfter time.Duration
		wantLocation   string
	}{
		{name: "ok_is_not_an_error", status: http.StatusOK, wantNil: true},
		{name: "no_content_is_not_an_error", status: http.StatusNoContent, wantNil: true},
		{
			name:         "temporary_redirect_with_location",
			status:       http.StatusTemporaryRedirect,
			header:       http.Header{"Location": {"https://other.example.com/deferred"}},
			wantKind:     KindTemporaryRedirect,
			wantLocation: "https://other.example.com/deferred",
		},
		{
			name:           "redirect_with_retry_after",
			status:         http.StatusFound,
			header:         http.Header{"Retry-After": {"5"}},
			wantKind:       KindTemporaryRedirect,
			wantRetryAfter: 5 * time.Second,
		},
		{
			name:     "conflict_regardless_of_body",
			status:   http.StatusConflict,
			wantKind: KindRequestConflict,
		},
		{
			name:           "too_many_requests_seconds",
			status:         http.StatusTooManyRequests,
			header:         http.Header{"Retry-After": {"30"}},
			wantKind:       KindTooManyRequests,
			wantRetryAfter: 30 * time.Second,
		},
		{
			name:           "too_many_requests_http_date",
			status:         http.StatusTooManyRequests,
			header:         http.Header{"Retry-After": {now.Add(2 * time.Minute).Format(http.TimeFormat)}},
			wantKind:       KindTooManyRequests,
			wantRetryAfter: 2 * time.Minute,
		},
		{
			name:     "too_many_requests_without_hint",
			status:   http.StatusTooManyRequests,
			wantKind: KindTooManyRequests,
		},
		{name: "bad_request", status: http.StatusBadRequest, wantKind: KindNetworkFailure},
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: KindNetworkFailure},
		{name: "server_error", status: http.StatusInternalServerError, wantKind: KindNetworkFailure},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantKind: KindNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			got := ClassifyStatus(tt.status, header, now)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.wantRetryAfter, got.RetryAfter)
			assert.Equal(t, tt.wantLocation, got.Location)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "empty", value: "", wantOK: false},
		{name: "seconds", value: "30", want: 30 * time.Second, wantOK: true},
		{name: "zero_seconds", value: "0", want: 0, wantOK: true},
		{name: "padded", value: " 12 ", want: 12 * time.Second, wantOK: true},
		{name: "negative", value: "-5", wantOK: false},
		{name: "capped", value: "86400", want: MaxRetryAfter, wantOK: true},
		{name: "http_date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second, wantOK: true},
		{name: "past_date", value: now.Add(-time.Hour).Format(http.TimeFormat), want: 0, wantOK: true},
		{name: "garbage", value: "soon", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Classify(nil))
	})

	t.Run("typed_error_passes_through", func(t *testing.T) {
		orig := &ResolutionError{Kind: KindRequestConflict, StatusCode: http.StatusConflict}
		got := Classify(fmt.Errorf("wrapped: %w", orig))
		assert.Same(t, orig, got)
	})

	t.Run("context_error_is_network_failure", func(t *testing.T) {
		got := Classify(context.DeadlineExceeded)
		assert.Equal(t, KindNetworkFailure, got.Kind)
		assert.ErrorIs(t, got, context.DeadlineExceeded)
	})

	t.Run("unknown_error_is_network_failure", func(t *testing.T) {
		got := Classify(errors.New("connection reset by peer"))
		assert.Equal(t, KindNetworkFailure, got.Kind)
		assert.Equal(t, "connection reset by peer", got.Message)
	})
}
