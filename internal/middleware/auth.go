package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"parley/internal/auth"
	"parley/internal/revoke"
)

type authContextKey struct{}

// ClaimsFromContext extracts the authenticated claims, if present.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	v := ctx.Value(authContextKey{})
	if v == nil {
		return nil, false
	}
	c, ok := v.(*auth.Claims)
	return c, ok
}

// AuthMiddleware validates bearer tokens and rejects revoked sessions.
type AuthMiddleware struct {
	jwt     *auth.JWTManager
	revoked revoke.Store
}

// NewAuthMiddleware builds the authentication perimeter check.
func NewAuthMiddleware(jwt *auth.JWTManager, revoked revoke.Store) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, revoked: revoked}
}

// RequireAuth verifies the Authorization header, consults the revocation
// store, and attaches the claims to the request context.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, "missing authorization header")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			unauthorized(w, "invalid token")
			return
		}

		claims, err := a.jwt.VerifyToken(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		// A logged-out session keeps a syntactically valid token until its
		// natural expiry; the blacklist is what actually ends it.
		revoked, err := a.revoked.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			http.Error(w, "authentication backend unavailable", http.StatusInternalServerError)
			return
		}
		if revoked {
			unauthorized(w, "session has been logged out")
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
