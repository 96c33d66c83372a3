package gate

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/hatemosphere/campus-portal/internal/session"
)

// Navigator performs a redirect. Implementations are fire-and-forget.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// StateSource is the part of a session.Resolver the gate consumes.
type StateSource interface {
	State() session.State
	Watch() (<-chan session.State, func())
}

// Gate guards one protected view. It recomputes its decision whenever the
// resolver state or its own inputs change and navigates once per change of
// decision; re-evaluating unchanged inputs never navigates twice.
//
// Concurrent evaluations commit in the order they read the resolver, and
// only the latest committed decision navigates. Navigate must not call back
// into the gate.
type Gate struct {
	src    StateSource
	nav    Navigator
	routes Routes

	evalMu sync.Mutex // read state, decide, commit
	navMu  sync.Mutex // keeps navigations in commit order

	mu         sync.Mutex
	allowed    []string
	redirectTo string
	current    Decision
	evaluated  bool
	seq        uint64
	navPending bool // the committed decision still owes a navigation
}

// New creates a gate for the given allowed roles. redirectTo, when non-empty,
// overrides the role landing page for wrong-role denials.
func New(src StateSource, nav Navigator, routes Routes, allowedRoles []string, redirectTo string) *Gate {
	return &Gate{
		src:        src,
		nav:        nav,
		routes:     routes,
		allowed:    slices.Clone(allowedRoles),
		redirectTo: redirectTo,
	}
}

// Evaluate recomputes the decision from the current resolver state and
// applies its navigation effect if the decision changed.
func (g *Gate) Evaluate() Decision {
	g.evalMu.Lock()
	st := g.src.State()

	g.mu.Lock()
	d := Decide(st, g.allowed, g.redirectTo, g.routes)
	changed := !g.evaluated || d != g.current
	g.current = d
	g.evaluated = true
	g.seq++
	seq := g.seq
	if changed {
		g.navPending = d.Denied()
	}
	g.mu.Unlock()
	g.evalMu.Unlock()

	if changed {
		decisions.WithLabelValues(d.Outcome.String()).Inc()
		slog.Debug("gate decision", "outcome", d.Outcome.String(), "role", d.Role, "path", d.Path)
	}

	g.navMu.Lock()
	defer g.navMu.Unlock()
	g.mu.Lock()
	navigate := seq == g.seq && g.navPending
	if navigate {
		g.navPending = false
	}
	g.mu.Unlock()
	if navigate {
		g.nav.Navigate(d.Path)
	}
	return d
}

// Decision returns the last evaluated decision.
func (g *Gate) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Render reports whether the protected content should be shown.
func (g *Gate) Render() bool {
	return g.Decision().Outcome == Granted
}

// SetRoles replaces the allowed roles and override path and re-evaluates.
func (g *Gate) SetRoles(allowedRoles []string, redirectTo string) Decision {
	g.mu.Lock()
	g.allowed = slices.Clone(allowedRoles)
	g.redirectTo = redirectTo
	g.mu.Unlock()
	return g.Evaluate()
}

// Run evaluates once and then on every resolver state change until ctx is
// done or the resolver closes. It does not poll on its own.
func (g *Gate) Run(ctx context.Context) error {
	states, stop := g.src.Watch()
	defer stop()

	g.Evaluate()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-states:
			if !ok {
				return nil
			}
			g.Evaluate()
		}
	}
}
