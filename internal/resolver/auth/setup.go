package auth

import (
	"context"
	"fmt"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
)

// FromConfig builds the token supplier described by cfg.
//
// A non-empty staticToken is used for every channel. Otherwise, when
// cfg.TokenURL is set, tokens are fetched from it by a Manager that caches them
// in Redis if cfg.RedisAddr is set and in memory if not. With neither, the
// supplier has no token and every resolution fails with MissingAuthToken.
//
// The returned close function releases the token store and is never nil.
func FromConfig(ctx context.Context, cfg configuration.AuthConfig, staticToken string) (TokenSupplier, func() error, error) {
	noop := func() error { return nil }

	if staticToken != "" {
		return StaticSupplier(staticToken), noop, nil
	}
	if cfg.TokenURL == "" {
		return StaticSupplier(""), noop, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, fmt.Errorf("%w: %w", configuration.ErrInvalidConfig, err)
	}

	fetcher := NewHTTPFetcher(cfg, nil)
	if cfg.RedisAddr == "" {
		return NewManager(fetcher, NewMemoryStore(), cfg), noop, nil
	}

	store, err := NewRedisStore(ctx, cfg, nil)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to initialize redis token store: %w", err)
	}
	return NewManager(fetcher, store, cfg), store.Close, nil
}
