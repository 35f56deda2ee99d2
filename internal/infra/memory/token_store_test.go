package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom-service/internal/domain"
	"classroom-service/internal/infra/memory"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore(time.Hour)

	token, err := store.Issue(ctx, domain.User{ID: "s1", Role: domain.RoleStudent, DisplayName: "Ana"})
	if err != nil || token == "" {
		t.Fatalf("issue failed: %q %v", token, err)
	}

	user, err := store.Resolve(ctx, token)
	if err != nil || user.ID != "s1" || user.Role != domain.RoleStudent {
		t.Fatalf("resolve failed: %+v %v", user, err)
	}

	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := store.Resolve(ctx, token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
}

func TestTokenStoreRejectsUnknown(t *testing.T) {
	store := memory.NewTokenStore(time.Hour)
	if _, err := store.Resolve(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
