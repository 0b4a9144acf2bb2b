package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/models"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// TokenValidator turns a session token into the calling principal.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Principal, error)
}

// RequireAuth reads the session token from the Authorization bearer header,
// or else from the cookie, and rejects the request with 401 if it is
// missing or invalid.
func RequireAuth(v TokenValidator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				if c, err := r.Cookie(cookieName); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			p, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				httpx.Fail(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromCtx(r.Context())
		if p == nil {
			httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !p.IsAdmin {
			httpx.Fail(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFromCtx returns the authenticated caller or nil.
func PrincipalFromCtx(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*models.Principal)
	return p
}

// WithPrincipal returns a context carrying the given caller.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

// Principal adapts PrincipalFromCtx to handlers that take the request.
func Principal(r *http.Request) (*models.Principal, bool) {
	p := PrincipalFromCtx(r.Context())
	return p, p != nil
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
