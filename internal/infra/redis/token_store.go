package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"classroom-service/internal/domain"
)

// TokenStore keeps session tokens in Redis with a TTL, so a token stays
// valid across instances and dies on its own when the session expires.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue mints an opaque token for the user and stores the session.
func (s *TokenStore) Issue(ctx context.Context, user domain.User) (string, error) {
	token := uuid.NewString()
	raw, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("marshal session user: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Resolve returns the user behind a token, or domain.ErrInvalidToken.
func (s *TokenStore) Resolve(ctx context.Context, token string) (domain.User, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.User{}, domain.ErrInvalidToken
		}
		return domain.User{}, fmt.Errorf("resolve session: %w", err)
	}
	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return domain.User{}, domain.ErrInvalidToken
	}
	return user, nil
}

// Revoke drops a token immediately.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *TokenStore) key(token string) string {
	return "session:" + token
}
