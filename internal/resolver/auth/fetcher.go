package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
)

// ErrTokenFetch is returned when the token authority rejects a fetch.
var ErrTokenFetch = errors.New("token fetch failed")

const maxTokenResponseBytes = 64 << 10

// tokenResponse is the token authority's reply. ExpiresIn is in seconds;
// zero means the token does not expire.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// HTTPFetcher fetches channel tokens from the token authority at cfg.TokenURL.
type HTTPFetcher struct {
	client     *http.Client
	url        string
	credential string
	now        func() time.Time
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets one bounded by cfg.FetchTimeout.
func NewHTTPFetcher(cfg configuration.AuthConfig, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &HTTPFetcher{
		client:     client,
		url:        cfg.TokenURL,
		credential: cfg.Credential,
		now:        time.Now,
	}
}

// FetchToken implements Fetcher.
func (f *HTTPFetcher) FetchToken(ctx context.Context, channelID string) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Channel-ID", channelID)
	if f.credential != "" {
		req.Header.Set("Authorization", "Bearer "+f.credential)
	}

	// Capture the issue time before the round trip so expiry is never overestimated.
	issuedAt := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Token{}, fmt.Errorf("%w: status %d", ErrTokenFetch, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("%w: decode response: %w", ErrTokenFetch, err)
	}
	if tr.ExpiresIn < 0 {
		return Token{}, fmt.Errorf("%w: negative expires_in %d", ErrTokenFetch, tr.ExpiresIn)
	}

	tok := Token{Value: tr.Token}
	if tr.ExpiresIn > 0 {
		tok.ExpiresAt = issuedAt.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}
