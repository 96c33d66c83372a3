package gate

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/hatemosphere/campus-portal/internal/audit"
	"github.com/hatemosphere/campus-portal/internal/auth"
	"github.com/hatemosphere/campus-portal/internal/session"
)

// Resolvers hands out the live resolver of a browser session.
type Resolvers interface {
	Resolver(ctx context.Context, sessionID string) *session.Resolver
}

// Middleware is the HTTP form of the gate: one decision per request, with
// navigation applied as a 303 redirect.
type Middleware struct {
	resolvers     Resolvers
	cookie        Cookie
	routes        Routes
	loadingReload time.Duration
}

// NewMiddleware creates the HTTP gate.
func NewMiddleware(resolvers Resolvers, cookie Cookie, routes Routes) *Middleware {
	return &Middleware{
		resolvers:     resolvers,
		cookie:        cookie,
		routes:        routes,
		loadingReload: time.Second,
	}
}

// Routes returns the redirect targets in use.
func (m *Middleware) Routes() Routes {
	return m.routes
}

// State resolves the session of the request. Requests without a session
// cookie are settled and signed out.
func (m *Middleware) State(r *http.Request) session.State {
	id := m.cookie.Read(r)
	if id == "" {
		return session.State{}
	}
	return m.resolvers.Resolver(r.Context(), id).State()
}

// Require wraps next so it only runs for identities holding one of
// allowedRoles. An empty role list lets nobody through.
func (m *Middleware) Require(allowedRoles []string, redirectTo string) func(http.Handler) http.Handler {
	roles := slices.Clone(allowedRoles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := m.State(r)
			d := Decide(st, roles, redirectTo, m.routes)
			decisions.WithLabelValues(d.Outcome.String()).Inc()

			switch d.Outcome {
			case Granted:
				next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), st.User)))
			case Pending:
				m.renderLoading(w)
			default:
				m.deny(w, r, st, d)
			}
		})
	}
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, st session.State, d Decision) {
	actor := "anonymous"
	if st.User != nil {
		actor = st.User.Email
	}

	// A landing page that is itself gated against the role would bounce forever.
	if d.Path == r.URL.Path {
		audit.Event{
			Actor:    actor,
			Action:   "access_page",
			Status:   "denied",
			Resource: r.URL.Path,
			Role:     d.Role,
			Reason:   "no_landing_page",
			IP:       r.RemoteAddr,
		}.Warn("Audit Log: Access Denied")
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	if d.Outcome == DeniedWrongRole {
		audit.Event{
			Actor:    actor,
			Action:   "access_page",
			Status:   "denied",
			Resource: r.URL.Path,
			Role:     d.Role,
			Reason:   "role_not_allowed",
			IP:       r.RemoteAddr,
		}.Warn("Audit Log: Access Denied")
	} else {
		slog.Debug("unauthenticated page request", "path", r.URL.Path, "redirect", d.Path)
	}

	redirector{w: w, r: r}.Navigate(d.Path)
}

func (m *Middleware) renderLoading(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", strconv.Itoa(int(m.loadingReload.Seconds())))
	w.WriteHeader(http.StatusOK)
	if err := loadingPageTmpl.Execute(w, nil); err != nil {
		slog.Error("render loading page", "error", err)
	}
}

// redirector navigates by answering the request with 303 See Other.
type redirector struct {
	w http.ResponseWriter
	r *http.Request
}

func (n redirector) Navigate(path string) {
	http.Redirect(n.w, n.r, path, http.StatusSeeOther)
}

var loadingPageTmpl = template.Must(template.New("loading").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Loading…</title></head>
<body>
<div class="spinner" role="status" aria-live="polite">Loading…</div>
</body>
</html>`))
