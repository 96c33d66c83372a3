package gate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known roles of the portal.
const (
	RoleStudent   = "student"
	RoleOrganizer = "organizer"
	RoleStaff     = "staff"
	RoleAdmin     = "admin"
)

// Routes holds the redirect targets the gate navigates to.
type Routes struct {
	Login    string            `yaml:"loginPath"`    // where unauthenticated users go
	Fallback string            `yaml:"fallbackPath"` // landing page for roles without a mapping
	Landing  map[string]string `yaml:"landing"`      // role -> default landing page
}

// DefaultRoutes returns the built-in redirect targets.
func DefaultRoutes() Routes {
	return Routes{
		Login:    "/login",
		Fallback: "/dashboard",
		Landing: map[string]string{
			RoleStudent:   "/dashboard",
			RoleOrganizer: "/organizer",
			RoleStaff:     "/staff",
			RoleAdmin:     "/admin",
		},
	}
}

// LandingFor returns the default landing page for role, or the fallback when
// the role has no mapping.
func (r Routes) LandingFor(role string) string {
	if p, ok := r.Landing[strings.ToLower(role)]; ok && p != "" {
		return p
	}
	return r.Fallback
}

// LoadRoutes reads a roles file and overlays it on DefaultRoutes. Landing keys
// are matched case-insensitively.
func LoadRoutes(path string) (Routes, error) {
	routes := DefaultRoutes()
	data, err := os.ReadFile(path)
	if err != nil {
		return routes, fmt.Errorf("read roles config: %w", err)
	}
	var file Routes
	if err := yaml.Unmarshal(data, &file); err != nil {
		return routes, fmt.Errorf("parse roles config: %w", err)
	}
	if file.Login != "" {
		routes.Login = file.Login
	}
	if file.Fallback != "" {
		routes.Fallback = file.Fallback
	}
	for role, p := range file.Landing {
		if !strings.HasPrefix(p, "/") {
			return routes, fmt.Errorf("landing page for role %q must be an absolute path, got %q", role, p)
		}
		routes.Landing[strings.ToLower(strings.TrimSpace(role))] = p
	}
	return routes, nil
}
