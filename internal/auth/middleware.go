package auth

import (
	"context"
	"net/http"
	"strings"

	"relaymail/internal/httpapi"
)

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the principal put there by Middleware.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// Middleware requires a valid bearer token with one of the given roles.
// With no roles, any valid token is accepted.
func (s *Service) Middleware(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "missing authorization header", false)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "invalid authorization header format", false)
				return
			}

			p, err := s.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "invalid token", false)
				return
			}
			if len(roles) > 0 && !hasRole(roles, p.Role) {
				httpapi.WriteError(w, http.StatusForbidden, httpapi.CodeForbidden, "role not allowed", false)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func hasRole(roles []Role, r Role) bool {
	for _, want := range roles {
		if want == r {
			return true
		}
	}
	return false
}
