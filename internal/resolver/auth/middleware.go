package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
	"github.com/ahrav/go-deferred/internal/resolver/transport"
)

// Middleware attaches the channel's token to each request. A missing token
// fails the request with KindMissingAuthToken before anything is sent.
// When the server answers 401 and supplier implements Expirer, the token is
// expired so the next resolution fetches a fresh one. The request itself is
// not retried.
func Middleware(supplier TokenSupplier) transport.Middleware {
	logger := slog.Default().With("component", "auth")
	expirer, canExpire := supplier.(Expirer)

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			channelID := req.Resolution.ChannelID()

			token, err := supplier.Token(ctx, channelID)
			if err != nil || token == "" {
				if err == nil {
					err = ErrNoToken
				}
				return nil, reserrors.Wrap(reserrors.KindMissingAuthToken, err)
			}
			req.Token = token

			resp, err := next.Handle(ctx, req)
			if err == nil || !canExpire {
				return resp, err
			}

			var resErr *reserrors.ResolutionError
			if errors.As(err, &resErr) && resErr.StatusCode == http.StatusUnauthorized {
				if expErr := expirer.ExpireToken(ctx, channelID, token); expErr != nil {
					logger.Warn("failed to expire rejected token", "channel_id", channelID, "error", expErr)
				}
			}
			return resp, err
		})
	}
}
