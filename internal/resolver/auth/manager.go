package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
)

// Token is a bearer token with its expiry. A zero ExpiresAt never expires.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// validAt reports whether the token can still be used at now, allowing for leeway.
func (t Token) validAt(now time.Time, leeway time.Duration) bool {
	if t.Value == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(leeway).Before(t.ExpiresAt)
}

// Fetcher obtains a fresh token for a channel from the token authority.
type Fetcher interface {
	FetchToken(ctx context.Context, channelID string) (Token, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, channelID string) (Token, error)

// FetchToken implements Fetcher.
func (f FetcherFunc) FetchToken(ctx context.Context, channelID string) (Token, error) {
	return f(ctx, channelID)
}

// Store caches tokens per channel.
// Delete removes the entry only while it still holds value, so a token
// refreshed by another caller is not discarded.
type Store interface {
	Get(ctx context.Context, channelID string) (Token, bool, error)
	Set(ctx context.Context, channelID string, token Token) error
	Delete(ctx context.Context, channelID, value string) error
}

// Manager is a caching TokenSupplier. Concurrent refreshes for the same
// channel share a single fetch. The shared fetch is detached from any one
// caller's cancellation and bounded by the fetch timeout instead; each caller
// stops waiting when its own context ends.
type Manager struct {
	fetcher      Fetcher
	store        Store
	leeway       time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	now          func() time.Time
	logger       *slog.Logger
}

// NewManager creates a Manager. A nil store defaults to a MemoryStore.
func NewManager(fetcher Fetcher, store Store, cfg configuration.AuthConfig) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = configuration.DefaultAuthFetchTimeout
	}
	return &Manager{
		fetcher:      fetcher,
		store:        store,
		leeway:       cfg.ExpiryLeeway,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
		logger:       slog.Default().With("component", "auth"),
	}
}

// Token returns a cached token for channelID, fetching a new one when the
// cached token is missing or about to expire. Store failures degrade to a fetch.
func (m *Manager) Token(ctx context.Context, channelID string) (string, error) {
	cached, ok, err := m.store.Get(ctx, channelID)
	if err != nil {
		m.logger.Warn("token store read failed, fetching", "channel_id", channelID, "error", err)
	} else if ok && cached.validAt(m.now(), m.leeway) {
		return cached.Value, nil
	}

	ch := m.group.DoChan(channelID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.fetchTimeout)
		defer cancel()

		tok, err := m.fetcher.FetchToken(fetchCtx, channelID)
		if err != nil {
			return nil, fmt.Errorf("fetch token for channel %s: %w", channelID, err)
		}
		if tok.Value == "" {
			return nil, ErrNoToken
		}
		if err := m.store.Set(fetchCtx, channelID, tok); err != nil {
			m.logger.Warn("token store write failed", "channel_id", channelID, "error", err)
		}
		return tok.Value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("fetch token for channel %s: %w", channelID, ctx.Err())
	}
}

// ExpireToken discards token for channelID so the next Token call fetches a new one.
func (m *Manager) ExpireToken(ctx context.Context, channelID, token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := m.store.Delete(ctx, channelID, token); err != nil {
		return fmt.Errorf("expire token for channel %s: %w", channelID, err)
	}
	m.logger.Debug("token expired", "channel_id", channelID)
	return nil
}
