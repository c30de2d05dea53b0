package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-deferred/internal/domain"
	"github.com/ahrav/go-deferred/internal/resolver/configuration"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
)

func newDeferredServer(t *testing.T, wantToken *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantToken.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"audience_match":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitializeResolver_StaticToken(t *testing.T) {
	var want atomic.Value
	want.Store("static")
	srv := newDeferredServer(t, &want)

	r, shutdown, err := InitializeResolver(context.Background(), nil, "static")
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(context.Background())) }()

	req, err := domain.NewResolutionRequest(validParams(srv.URL))
	require.NoError(t, err)
	assert.True(t, r.Await(context.Background(), req).Resolved())
}

func TestInitializeResolver_TokenAuthority(t *testing.T) {
	var issued atomic.Int32
	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer app-secret", r.Header.Get("Authorization"))
		n := issued.Add(1)
		_, _ = io.WriteString(w, `{"token":"issued-`+string(rune('0'+n))+`","expires_in":3600}`)
	}))
	defer authority.Close()

	var want atomic.Value
	want.Store("issued-1")
	srv := newDeferredServer(t, &want)

	cfg := configuration.DefaultConfig()
	cfg.Auth.TokenURL = authority.URL
	cfg.Auth.Credential = "app-secret"

	r, shutdown, err := InitializeResolver(context.Background(), cfg, "")
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(context.Background())) }()

	req, err := domain.NewResolutionRequest(validParams(srv.URL))
	require.NoError(t, err)

	assert.True(t, r.Await(context.Background(), req).Resolved())
	assert.True(t, r.Await(context.Background(), req).Resolved())
	assert.Equal(t, int32(1), issued.Load())

	// The server rotates its token: the 401 expires the cached one so the next call fetches again.
	want.Store("issued-2")
	res := r.Await(context.Background(), req)
	require.NotNil(t, res.Err)
	assert.Equal(t, reserrors.KindNetworkFailure, res.Err.Kind)
	assert.Equal(t, http.StatusUnauthorized, res.Err.StatusCode)

	assert.True(t, r.Await(context.Background(), req).Resolved())
	assert.Equal(t, int32(2), issued.Load())
}

func TestInitializeResolver_NoTokenSource(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	r, shutdown, err := InitializeResolver(context.Background(), configuration.DefaultConfig(), "")
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	req, err := domain.NewResolutionRequest(validParams(srv.URL))
	require.NoError(t, err)
	res := r.Await(context.Background(), req)
	require.NotNil(t, res.Err)
	assert.Equal(t, reserrors.KindMissingAuthToken, res.Err.Kind)
	assert.Zero(t, calls.Load())
}

func TestInitializeResolver_RedisUnavailable(t *testing.T) {
	cfg := configuration.DefaultConfig()
	cfg.Auth.TokenURL = "https://auth.example.com/token"
	cfg.Auth.RedisAddr = "127.0.0.1:1"
	cfg.Auth.DialTimeout = 200 * time.Millisecond

	_, _, err := InitializeResolver(context.Background(), cfg, "")
	assert.ErrorContains(t, err, "token supplier")
}
