package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"classroom-service/internal/domain"
)

// TokenStore is the in-memory session token store used when Redis is not
// configured. Tokens expire lazily on resolve.
type TokenStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu     sync.RWMutex
	tokens map[string]sessionEntry
}

type sessionEntry struct {
	user      domain.User
	expiresAt time.Time
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	return &TokenStore{
		ttl:    ttl,
		clock:  time.Now,
		tokens: make(map[string]sessionEntry),
	}
}

// Issue mints a new opaque session token for the user.
func (s *TokenStore) Issue(_ context.Context, user domain.User) (string, error) {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = sessionEntry{user: user, expiresAt: s.clock().Add(s.ttl)}
	s.mu.Unlock()
	return token, nil
}

// Resolve returns the user behind a token, or domain.ErrInvalidToken.
func (s *TokenStore) Resolve(_ context.Context, token string) (domain.User, error) {
	s.mu.RLock()
	entry, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return domain.User{}, domain.ErrInvalidToken
	}
	if !entry.expiresAt.After(s.clock()) {
		s.mu.Lock()
		delete(s.tokens, token)
		s.mu.Unlock()
		return domain.User{}, domain.ErrInvalidToken
	}
	return entry.user, nil
}

// Revoke drops a token immediately.
func (s *TokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}
