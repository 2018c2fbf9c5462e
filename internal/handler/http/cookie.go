package http

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// CookieConfig controls the attributes of the refresh-token cookie.
type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

func (c CookieConfig) base() *http.Cookie {
	sameSite := c.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     RefreshCookieName,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: sameSite,
	}
}

// setRefreshCookie stores token in an httponly cookie that lives as long as
// the token itself.
func (c CookieConfig) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	cookie := c.base()
	cookie.Value = token
	cookie.MaxAge = int(c.MaxAge / time.Second)
	if !expiresAt.IsZero() {
		cookie.Expires = expiresAt.UTC()
	}
	http.SetCookie(w, cookie)
}

// clearRefreshCookie tells the browser to drop the cookie.
func (c CookieConfig) clearRefreshCookie(w http.ResponseWriter) {
	cookie := c.base()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

// readRefreshCookie returns the refresh token, or "" when the cookie is absent.
func readRefreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
