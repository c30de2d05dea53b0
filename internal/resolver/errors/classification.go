package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxRetryAfter caps server supplied delays.
const MaxRetryAfter = time.Hour

// ClassifyStatus maps a non-success HTTP response to a ResolutionError.
// It returns nil for 2xx statuses; the caller decides whether the body parses.
func ClassifyStatus(statusCode int, header http.Header, now time.Time) *ResolutionError {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil

	case statusCode >= 300 && statusCode < 400:
		e := &ResolutionError{
			Kind:       KindTemporaryRedirect,
			StatusCode: statusCode,
			Message:    "server redirected the request",
			Location:   header.Get("Location"),
		}
		e.RetryAfter, _ = ParseRetryAfter(header.Get("Retry-After"), now)
		return e

	case statusCode == http.StatusConflict:
		return &ResolutionError{
			Kind:       KindRequestConflict,
			StatusCode: statusCode,
			Message:    "server reported a request conflict",
		}

	case statusCode == http.StatusTooManyRequests:
		e := &ResolutionError{
			Kind:       KindTooManyRequests,
			StatusCode: statusCode,
			Message:    "server rate limited the request",
		}
		e.RetryAfter, _ = ParseRetryAfter(header.Get("Retry-After"), now)
		return e

	default:
		return &ResolutionError{
			Kind:       KindNetworkFailure,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status %s", statusText(statusCode)),
		}
	}
}

// ParseRetryAfter parses a Retry-After header value given as delta-seconds
// or an HTTP-date. Dates in the past yield zero. Values are capped at MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		if seconds > int64(MaxRetryAfter/time.Second) {
			return MaxRetryAfter, true
		}
		return time.Duration(seconds) * time.Second, true
	}

	t, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := t.Sub(now)
	if d < 0 {
		d = 0
	}
	if d > MaxRetryAfter {
		d = MaxRetryAfter
	}
	return d.Round(time.Second), true
}

// Classify normalizes any error produced while resolving into a ResolutionError.
// Typed errors pass through unchanged; everything else is a network failure.
func Classify(err error) *ResolutionError {
	if err == nil {
		return nil
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return resErr
	}

	return Wrap(KindNetworkFailure, err)
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return strconv.Itoa(code)
}
