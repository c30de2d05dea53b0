// Package auth supplies bearer tokens for resolution requests and attaches
// them to the transport pipeline.
package auth

import (
	"context"
	"errors"
)

// ErrNoToken is returned by suppliers that have no token for a channel.
var ErrNoToken = errors.New("no auth token available")

// TokenSupplier yields the bearer token for a channel.
// An empty token with a nil error is treated the same as ErrNoToken.
type TokenSupplier interface {
	Token(ctx context.Context, channelID string) (string, error)
}

// Expirer is implemented by suppliers that can discard a token the server rejected.
type Expirer interface {
	ExpireToken(ctx context.Context, channelID, token string) error
}

// SupplierFunc adapts a function to the TokenSupplier interface.
type SupplierFunc func(ctx context.Context, channelID string) (string, error)

// Token implements TokenSupplier.
func (f SupplierFunc) Token(ctx context.Context, channelID string) (string, error) {
	return f(ctx, channelID)
}

// StaticSupplier returns the same token for every channel.
type StaticSupplier string

// Token implements TokenSupplier.
func (s StaticSupplier) Token(context.Context, string) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}
