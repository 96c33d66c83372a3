package audit

import (
	"context"
	"log/slog"
)

// Enabled toggles audit output. Tests that don't look at audit entries turn
// it off.
var Enabled = true

// Event is one audit entry for a session or access-control action. Zero
// fields are left out of the log line.
type Event struct {
	Actor      string // email of the signed-in user, or "anonymous"
	Action     string // login, logout, access_page
	Status     string // granted, denied, failed
	Resource   string // request path
	Method     string
	HTTPStatus int
	Role       string // normalized role of the actor
	Reason     string
	IP         string
	Session    string // session fingerprint, never the raw ID
	Extra      []any
}

// Info logs the event at INFO.
func (e Event) Info(msg string) {
	e.emit(slog.LevelInfo, msg)
}

// Warn logs the event at WARN.
func (e Event) Warn(msg string) {
	e.emit(slog.LevelWarn, msg)
}

func (e Event) emit(level slog.Level, msg string) {
	if !Enabled {
		return
	}
	slog.Log(context.Background(), level, msg, slog.Group("audit", e.attrs()...)) //nolint:gosec // structured logger escapes values
}

func (e Event) attrs() []any {
	var attrs []any
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, slog.String(key, val))
		}
	}
	add("actor", e.Actor)
	add("action", e.Action)
	add("status", e.Status)
	add("resource", e.Resource)
	add("method", e.Method)
	if e.HTTPStatus != 0 {
		attrs = append(attrs, slog.Int("http_status", e.HTTPStatus))
	}
	add("role", e.Role)
	add("reason", e.Reason)
	add("ip_address", e.IP)
	add("session", e.Session)
	return append(attrs, e.Extra...)
}
