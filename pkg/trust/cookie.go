package trust

import (
	"net/http"
	"time"
)

// CookieWriter writes markers and other service cookies.
type CookieWriter struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// NewCookieWriter returns a writer for site-wide Lax cookies.
func NewCookieWriter(httpOnly, secure bool) *CookieWriter {
	return &CookieWriter{
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetCookie sets a cookie with the given value and expiry
func (c *CookieWriter) SetCookie(w http.ResponseWriter, name, value string, expire time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Value:    value,
		Expires:  expire,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// ClearCookie clears a cookie
func (c *CookieWriter) ClearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// Write delivers flushed marker changes.
func (c *CookieWriter) Write(w http.ResponseWriter, changes []Change) {
	for _, change := range changes {
		if change.Cleared {
			c.ClearCookie(w, change.Name)
			continue
		}
		c.SetCookie(w, change.Name, change.Value, change.ExpiresAt)
	}
}
