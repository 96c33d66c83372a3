package gate

import (
	"strings"

	"github.com/hatemosphere/campus-portal/internal/session"
)

// Outcome is the gate's verdict for one resolver state.
type Outcome int

const (
	Pending Outcome = iota
	DeniedUnauthenticated
	DeniedWrongRole
	Granted
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case DeniedUnauthenticated:
		return "unauthenticated"
	case DeniedWrongRole:
		return "forbidden"
	case Granted:
		return "granted"
	default:
		return "unknown"
	}
}

// Decision is the outcome plus, for denials, where to navigate.
type Decision struct {
	Outcome Outcome
	Role    string // the identity's normalized role, "" if none
	Path    string // redirect target; empty unless denied
}

// Denied reports whether the decision carries a redirect.
func (d Decision) Denied() bool {
	return d.Outcome == DeniedUnauthenticated || d.Outcome == DeniedWrongRole
}

// NormalizeRoles lower-cases and de-duplicates allowed roles. Blank entries
// are dropped, so an empty result allows nobody.
func NormalizeRoles(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return set
}

// Decide maps a resolver state to a gate decision. It is a pure function of
// its inputs.
//
// A non-empty redirectTo replaces the role landing page for wrong-role
// denials. It never affects the unauthenticated redirect.
func Decide(st session.State, allowedRoles []string, redirectTo string, routes Routes) Decision {
	if st.IsLoading && st.User == nil {
		return Decision{Outcome: Pending}
	}
	if !st.IsAuthenticated || st.User == nil {
		return Decision{Outcome: DeniedUnauthenticated, Path: routes.Login}
	}

	role := st.User.Role()
	if _, ok := NormalizeRoles(allowedRoles)[role]; ok {
		return Decision{Outcome: Granted, Role: role}
	}

	path := redirectTo
	if path == "" {
		path = routes.LandingFor(role)
	}
	return Decision{Outcome: DeniedWrongRole, Role: role, Path: path}
}
