package http

import (
	"context"
	"net/http"
	"strings"

	"classroom-service/internal/domain"
)

// TokenResolver turns a bearer token back into the session's user.
// Implemented by the Redis and memory token stores.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (domain.User, error)
}

type contextKey struct{}

func userFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(contextKey{}).(domain.User)
	return user, ok
}

// requireRole authenticates the bearer token and checks the session user
// holds one of the allowed roles. Ownership checks (is this the teacher's
// own class, the parent's own child) stay with the query layer.
func (h *Handler) requireRole(next http.HandlerFunc, roles ...domain.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		user, err := h.tokens.Resolve(r.Context(), token)
		if err != nil {
			h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: domain.ErrInvalidToken.Error()})
			return
		}
		allowed := false
		for _, role := range roles {
			if user.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			h.writeJSON(w, http.StatusForbidden, errorResponse{Error: "insufficient role"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

func bearerToken(r *http.Request) string {
	// Websocket clients cannot set headers from browsers; accept the token
	// as a query parameter there.
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
