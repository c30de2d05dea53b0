package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-deferred/internal/resolver/configuration"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, channelID string) (Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[channelID]
	return t, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, channelID string, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[channelID] = token
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, channelID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[channelID]; ok && t.Value == value {
		delete(s.tokens, channelID)
	}
	return nil
}

// deleteIfValue removes KEYS[1] only when its JSON token field equals ARGV[1].
//
// KEYS[1] = token key
// ARGV[1] = token value.
var deleteIfValue = redis.NewScript(`
	local cached = redis.call('GET', KEYS[1])
	if not cached then return 0 end
	local ok, obj = pcall(cjson.decode, cached)
	if not ok or type(obj) ~= 'table' or obj["token"] == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisStore shares cached tokens between processes through Redis.
// Entries expire with the token.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. If client is nil one is created from cfg
// and checked with a ping bounded by cfg.DialTimeout.
func NewRedisStore(ctx context.Context, cfg configuration.AuthConfig, client *redis.Client) (*RedisStore, error) {
	if client == nil {
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis address required")
		}
		client = redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.DialTimeout,
		})

		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = configuration.DefaultAuthKeyPrefix
	}
	slog.Default().With("component", "auth").Debug("redis token store ready", "prefix", prefix)
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(channelID string) string {
	return s.prefix + channelID
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, channelID string) (Token, bool, error) {
	raw, err := s.client.Get(ctx, s.key(channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		// Corrupt entries are dropped and treated as a miss.
		_ = s.client.Del(ctx, s.key(channelID)).Err()
		return Token{}, false, nil
	}
	return t, true, nil
}

// Set implements Store. Tokens that are already expired are not stored.
func (s *RedisStore) Set(ctx context.Context, channelID string, token Token) error {
	var ttl time.Duration
	if !token.ExpiresAt.IsZero() {
		ttl = time.Until(token.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := s.client.Set(ctx, s.key(channelID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, channelID, value string) error {
	if err := deleteIfValue.Run(ctx, s.client, []string{s.key(channelID)}, value).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
