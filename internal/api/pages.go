package api

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hatemosphere/campus-portal/internal/auth"
	"github.com/hatemosphere/campus-portal/internal/gate"
)

// Page is a protected view. Only identities holding one of Roles see it.
type Page struct {
	Path       string
	Title      string
	Roles      []string
	RedirectTo string // overrides the role landing page on wrong-role denials
}

// DefaultPages returns the portal's gated pages.
func DefaultPages() []Page {
	return []Page{
		{Path: "/dashboard", Title: "Dashboard", Roles: []string{gate.RoleStudent}},
		{Path: "/events", Title: "Events", Roles: []string{gate.RoleStudent}},
		{Path: "/clubs", Title: "Clubs", Roles: []string{gate.RoleStudent}},
		{Path: "/organizer", Title: "Organizer", Roles: []string{gate.RoleOrganizer}},
		{Path: "/organizer/venues", Title: "Venues", Roles: []string{gate.RoleOrganizer}},
		{Path: "/staff", Title: "Staff", Roles: []string{gate.RoleStaff}},
		{Path: "/staff/checkin", Title: "Check-in", Roles: []string{gate.RoleStaff}},
		{Path: "/admin", Title: "Administration", Roles: []string{gate.RoleAdmin}},
	}
}

func (s *Server) registerPages(mux *http.ServeMux) {
	for _, p := range s.pages {
		h := s.gate.Require(p.Roles, p.RedirectTo)(s.pageHandler(p))
		mux.Handle("GET "+p.Path, instrument(p.Path, h))
	}
}

// pageHandler renders a placeholder for p showing the signed-in identity and
// the other pages its role may open.
func (s *Server) pageHandler(p Page) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		role := id.Role()

		var nav []Page
		for _, other := range s.pages {
			if _, ok := gate.NormalizeRoles(other.Roles)[role]; ok {
				nav = append(nav, other)
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := pageTmpl.Execute(w, map[string]any{
			"Title": p.Title,
			"Name":  id.DisplayName(),
			"Role":  role,
			"Nav":   nav,
		}); err != nil {
			slog.Error("render page", "path", p.Path, "error", err)
		}
	})
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Campus Events: {{.Title}}</title>
</head>
<body>
<header>
<nav>{{range .Nav}}<a href="{{.Path}}">{{.Title}}</a> {{end}}<a href="/logout">Sign out</a></nav>
<p>Signed in as {{.Name}} ({{.Role}})</p>
</header>
<main><h1>{{.Title}}</h1></main>
</body>
</html>`))
