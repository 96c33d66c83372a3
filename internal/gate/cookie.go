package gate

import (
	"net/http"
	"strings"
	"time"

	"github.com/hatemosphere/campus-portal/internal/auth"
)

// Cookie describes the browser cookie carrying the session ID.
type Cookie struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// Read returns the session ID from the request, or "" if absent or not in
// the expected format.
func (c Cookie) Read(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return c.Parse(ck.Value)
}

// Parse validates a raw cookie value.
func (c Cookie) Parse(value string) string {
	if !strings.HasPrefix(value, auth.SessionPrefix) {
		return ""
	}
	return value
}

// New returns the cookie that stores sessionID.
func (c Cookie) New(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expired returns the cookie that removes the session from the browser.
func (c Cookie) Expired() *http.Cookie {
	ck := c.New("")
	ck.MaxAge = -1
	return ck
}

// Write sets the session cookie.
func (c Cookie) Write(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, c.New(sessionID))
}

// Clear expires the session cookie.
func (c Cookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.Expired())
}
