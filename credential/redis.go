package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// Redis key defaults.
const (
	DefaultRedisPrefix = "contaconmigo:session:"
	DefaultSessionKey  = "default"
)

const (
	fieldAccess  = "access_token"
	fieldRefresh = "refresh_token"
	fieldProfile = "profile"
)

// RedisStore keeps the session in a Redis hash stored under
// "<prefix><sessionKey>". Several clients may share one Redis by using
// distinct session keys.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// compile-time check
var _ contaconmigo.CredentialStore = (*RedisStore)(nil)

// RedisOption configures the RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires the stored session after d. Zero keeps it until cleared.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// NewRedisStore creates a Redis-backed store. prefix defaults to
// "contaconmigo:session:" and sessionKey to "default".
func NewRedisStore(client *redis.Client, prefix, sessionKey string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if sessionKey == "" {
		sessionKey = DefaultSessionKey
	}
	s := &RedisStore{client: client, key: prefix + sessionKey}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the Redis key holding the session.
func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) field(ctx context.Context, name string) (string, error) {
	v, err := s.client.HGet(ctx, s.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credential/redis: hget %s: %w", name, err)
	}
	return v, nil
}

func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	return s.field(ctx, fieldAccess)
}

func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	return s.field(ctx, fieldRefresh)
}

func (s *RedisStore) Profile(ctx context.Context) (*contaconmigo.UserProfile, error) {
	raw, err := s.field(ctx, fieldProfile)
	if err != nil || raw == "" {
		return nil, err
	}
	var p contaconmigo.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("credential/redis: decode profile: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, tokens contaconmigo.Tokens, profile contaconmigo.UserProfile) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("credential/redis: encode profile: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, map[string]any{
			fieldAccess:  tokens.AccessToken,
			fieldRefresh: tokens.RefreshToken,
			fieldProfile: string(b),
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("credential/redis: save: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearSession(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("credential/redis: clear: %w", err)
	}
	return nil
}
