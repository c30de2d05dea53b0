package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
)

func TestStaticSupplier(t *testing.T) {
	tok, err := StaticSupplier("abc").Token(context.Background(), "channel")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = StaticSupplier("").Token(context.Background(), "channel")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestManager_CachesToken(t *testing.T) {
	var fetches atomic.Int32
	fetcher := FetcherFunc(func(_ context.Context, channelID string) (Token, error) {
		fetches.Add(1)
		return Token{Value: "token-" + channelID, ExpiresAt: time.Now().Add(time.Hour)}, nil
	})
	m := NewManager(fetcher, nil, configuration.AuthConfig{ExpiryLeeway: time.Minute})

	for range 3 {
		tok, err := m.Token(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, "token-c1", tok)
	}
	assert.Equal(t, int32(1), fetches.Load())

	tok, err := m.Token(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "token-c2", tok)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestManager_RefreshesWithinLeeway(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var fetches atomic.Int32
	fetcher := FetcherFunc(func(context.Context, string) (Token, error) {
		fetches.Add(1)
		return Token{Value: "t", ExpiresAt: now.Add(45 * time.Second)}, nil
	})
	m := NewManager(fetcher, nil, configuration.AuthConfig{ExpiryLeeway: 30 * time.Second})
	m.now = func() time.Time { return now }

	_, err := m.Token(context.Background(), "c")
	require.NoError(t, err)
	_, err = m.Token(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load(), "token still outside leeway")

	now = now.Add(20 * time.Second)
	_, err = m.Token(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load(), "token inside leeway must be refreshed")
}

func TestManager_SingleFetchForConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	var fetches atomic.Int32
	fetcher := FetcherFunc(func(context.Context, string) (Token, error) {
		fetches.Add(1)
		<-release
		return Token{Value: "shared"}, nil
	})
	m := NewManager(fetcher, nil, configuration.AuthConfig{})

	const callers = 10
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			tok, err := m.Token(context.Background(), "c")
			assert.NoError(t, err)
			results[i] = tok
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
	assert.LessOrEqual(t, fetches.Load(), int32(2))
}

func TestManager_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var fetches atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, _ string) (Token, error) {
		if fetches.Add(1) == 1 {
			close(entered)
		}
		select {
		case <-release:
			return Token{Value: "shared"}, nil
		case <-ctx.Done():
			return Token{}, ctx.Err()
		}
	})
	m := NewManager(fetcher, nil, configuration.AuthConfig{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Token(firstCtx, "c")
		firstErr <- err
	}()
	<-entered

	type result struct {
		tok string
		err error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := m.Token(context.Background(), "c")
		second <- result{tok: tok, err: err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.tok)
}

func TestManager_FetchTimeout(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, _ string) (Token, error) {
		<-ctx.Done()
		return Token{}, ctx.Err()
	})
	m := NewManager(fetcher, nil, configuration.AuthConfig{FetchTimeout: 20 * time.Millisecond})

	_, err := m.Token(context.Background(), "c")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_FetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		fetcher Fetcher
		wantErr error
	}{
		{
			name: "fetch_error",
			fetcher: FetcherFunc(func(context.Context, string) (Token, error) {
				return Token{}, errors.New("authority unavailable")
			}),
		},
		{
			name: "empty_token",
			fetcher: FetcherFunc(func(context.Context, string) (Token, error) {
				return Token{}, nil
			}),
			wantErr: ErrNoToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.fetcher, nil, configuration.AuthConfig{})
			_, err := m.Token(context.Background(), "c")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestManager_ExpireToken(t *testing.T) {
	var n atomic.Int32
	fetcher := FetcherFunc(func(context.Context, string) (Token, error) {
		if n.Add(1) == 1 {
			return Token{Value: "first"}, nil
		}
		return Token{Value: "second"}, nil
	})
	m := NewManager(fetcher, nil, configuration.AuthConfig{})
	ctx := context.Background()

	tok, err := m.Token(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, "first", tok)

	require.NoError(t, m.ExpireToken(ctx, "c", "first"))
	tok, err = m.Token(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "second", tok)

	// Expiring a stale value keeps the newer token.
	require.NoError(t, m.ExpireToken(ctx, "c", "first"))
	tok, err = m.Token(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "second", tok)

	assert.Error(t, m.ExpireToken(ctx, "c", ""))
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Token, bool, error) {
	return Token{}, false, errors.New("store down")
}
func (failingStore) Set(context.Context, string, Token) error { return errors.New("store down") }
func (failingStore) Delete(context.Context, string, string) error {
	return errors.New("store down")
}

func TestManager_StoreFailureDegradesToFetch(t *testing.T) {
	m := NewManager(FetcherFunc(func(context.Context, string) (Token, error) {
		return Token{Value: "fresh"}, nil
	}), failingStore{}, configuration.AuthConfig{})

	tok, err := m.Token(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Error(t, m.ExpireToken(context.Background(), "c", "fresh"))
}
