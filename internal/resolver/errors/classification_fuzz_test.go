package errors

import (
	"net/http"
	"testing"
	"time"
)

// FuzzParseRetryAfter checks that any header value yields either no delay or
// a whole-second delay within [0, MaxRetryAfter], and that classification of a
// 429 carrying it never panics.
func FuzzParseRetryAfter(f *testing.F) {
	seeds := []string{
		"",
		"0",
		"1",
		"30",
		"3600",
		"3601",
		"-1",
		"abc",
		"1.5",
		"9999999999999999999999",
		"  30  ",
		"+30",
		"30s",
		"0x1E",
		"Mon, 01 Jan 2024 12:00:00 GMT",
		"Wed, 21 Oct 2015 07:28:00 GMT",
		"Sunday, 06-Nov-94 08:49:37 GMT",
		"Sun Nov  6 08:49:37 1994",
		"2147483648",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, value string) {
		d, ok := ParseRetryAfter(value, now)
		if !ok && d != 0 {
			t.Fatalf("ParseRetryAfter(%q) = %v, false; want zero delay when not ok", value, d)
		}
		if d < 0 || d > MaxRetryAfter {
			t.Fatalf("ParseRetryAfter(%q) = %v, outside [0, %v]", value, d, MaxRetryAfter)
		}
		if d%time.Second != 0 {
			t.Fatalf("ParseRetryAfter(%q) = %v, not whole seconds", value, d)
		}

		header := http.Header{}
		header.Set("Retry-After", value)
		resErr := ClassifyStatus(http.StatusTooManyRequests, header, now)
		if resErr == nil || resErr.Kind != KindTooManyRequests {
			t.Fatalf("ClassifyStatus(429) = %+v, want TooManyRequests", resErr)
		}
		if resErr.RetryAfter < 0 || resErr.RetryAfter > MaxRetryAfter {
			t.Fatalf("RetryAfter %v outside [0, %v] for %q", resErr.RetryAfter, MaxRetryAfter, value)
		}
	})
}
