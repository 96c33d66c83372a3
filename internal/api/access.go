package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/hatemosphere/campus-portal/internal/gate"
	"github.com/hatemosphere/campus-portal/internal/session"
)

// NavigateEvent tells an open page to leave for Path.
type NavigateEvent struct {
	Path string `json:"path" doc:"Where the page must navigate"`
}

// WatchAccessInput names the roles an open page requires.
type WatchAccessInput struct {
	Roles      []string `query:"roles" doc:"Roles allowed on the page"`
	RedirectTo string   `query:"redirectTo" doc:"Overrides the role landing page on wrong-role denials"`
}

// signedOut is the state of a request without a session. It never changes.
type signedOut struct{}

func (signedOut) State() session.State { return session.State{} }

func (signedOut) Watch() (<-chan session.State, func()) {
	ch := make(chan session.State)
	close(ch)
	return ch, func() {}
}

// registerAccessWatch streams the gate's navigations for an already rendered
// page, so a login, logout or role change elsewhere moves the page along.
func (s *Server) registerAccessWatch(api huma.API) {
	sse.Register(api, huma.Operation{
		OperationID: "watchAccess",
		Method:      http.MethodGet,
		Path:        "/api/session/access",
		Summary:     "Stream navigations for a page gated on roles",
		Tags:        []string{"Session"},
	}, map[string]any{
		"navigate": NavigateEvent{},
	}, func(ctx context.Context, input *WatchAccessInput, send sse.Sender) {
		var src gate.StateSource = signedOut{}
		if sid := sessionIDFromContext(ctx); sid != "" {
			src = s.registry.Resolver(ctx, sid)
		}

		nav := gate.NavigatorFunc(func(path string) {
			if err := send.Data(NavigateEvent{Path: path}); err != nil {
				slog.Debug("send navigate event", "error", err)
			}
		})
		g := gate.New(src, nav, s.routes, input.Roles, input.RedirectTo)
		if err := g.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("access watch ended", "error", err)
		}
	})
}
