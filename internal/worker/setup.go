// Package worker provides initialization and setup utilities for Temporal workers.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-deferred/internal/resolver"
	"github.com/ahrav/go-deferred/internal/resolver/auth"
	"github.com/ahrav/go-deferred/internal/resolver/configuration"
)

// InitializeResolver creates the resolver the activities run against, with the
// token supplier built from cfg.Auth (see auth.FromConfig). A non-empty
// staticToken overrides the configured token authority.
//
// The returned shutdown function drains the resolver and releases the token
// store. Returns the resolver for dependency injection rather than setting global state.
func InitializeResolver(ctx context.Context, cfg *configuration.Config, staticToken string) (*resolver.Resolver, func(context.Context) error, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}

	tokens, closeTokens, err := auth.FromConfig(ctx, cfg.Auth, staticToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token supplier: %w", err)
	}

	r, err := resolver.New(cfg, tokens)
	if err != nil {
		_ = closeTokens()
		return nil, nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(r.Close(ctx), closeTokens())
	}
	return r, shutdown, nil
}
