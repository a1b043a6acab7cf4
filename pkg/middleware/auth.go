package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/httputil"
	"github.com/wanderly/identity/pkg/logger"
)

type contextKeyType string

const principalKey contextKeyType = "principal"

// Principal is the caller identity established from an access token.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// TokenValidator checks an access token and returns its principal.
type TokenValidator func(token string) (*Principal, error)

// AuthConfig controls where the token is read from.
type AuthConfig struct {
	// CookieName, when set, is consulted if no Authorization header is sent.
	CookieName string
}

// Auth rejects requests without a valid access token and stores the
// principal in the request context.
func Auth(validate TokenValidator, cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r, cfg.CookieName)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing access token"), nil)
				return
			}

			principal, err := validate(token)
			if err != nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), nil)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			ctx = logger.WithUserID(ctx, principal.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
			return "", false
		}
		return token, true
	}
	if cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// RequireRole allows only principals holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing access token"), nil)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext returns the authenticated principal or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// UserIDFromContext returns the authenticated user id or "".
func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return ""
}
