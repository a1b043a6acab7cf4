package http

import (
	"net/http"
	"time"

	"github.com/wanderly/identity/internal/domain"
)

// Cookie names carrying the session tokens.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// refreshCookiePath keeps the refresh token off every route but the auth ones.
const refreshCookiePath = "/api/v1/auth"

// CookieConfig controls the session cookies. Secure should only be off for
// plain-HTTP local development.
type CookieConfig struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieConfig) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   int(ttl / time.Second),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// setSession writes both tokens of pair as cookies.
func (c CookieConfig) setSession(w http.ResponseWriter, pair *domain.TokenPair) {
	http.SetCookie(w, c.cookie(AccessCookie, pair.AccessToken, "/", c.AccessTTL))
	http.SetCookie(w, c.cookie(RefreshCookie, pair.RefreshToken, refreshCookiePath, c.RefreshTTL))
}

// clearSession expires both session cookies.
func (c CookieConfig) clearSession(w http.ResponseWriter) {
	access := c.cookie(AccessCookie, "", "/", 0)
	access.MaxAge = -1
	refresh := c.cookie(RefreshCookie, "", refreshCookiePath, 0)
	refresh.MaxAge = -1
	http.SetCookie(w, access)
	http.SetCookie(w, refresh)
}

// refreshTokenFrom prefers an explicit token in the body over the cookie.
func refreshTokenFrom(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		return c.Value
	}
	return ""
}
