package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hatemosphere/campus-portal/internal/audit"
	"github.com/hatemosphere/campus-portal/internal/auth"
	"github.com/hatemosphere/campus-portal/internal/remote"
	"github.com/hatemosphere/campus-portal/internal/session"
)

var errInvalidCredentials = errors.New("invalid email or password")

func (s *Server) registerSessionAPI(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Describe the caller's session",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *struct{}) (*SessionOutput, error) {
		st := s.state(ctx, sessionIDFromContext(ctx))
		return &SessionOutput{CacheControl: "no-store", Body: s.sessionBody(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/auth/login",
		Summary:     "Sign in with the events API and start a browser session",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		sid, id, err := s.login(ctx, input.Body.Email, input.Body.Password, remoteAddrFromContext(ctx))
		if errors.Is(err, errInvalidCredentials) {
			return nil, huma.Error401Unauthorized(err.Error())
		}
		if err != nil {
			return nil, huma.Error502BadGateway("events API unavailable")
		}
		body := s.sessionBody(session.State{User: id, IsAuthenticated: true, Source: session.SourceRemote})
		return &LoginOutput{SetCookie: s.cookie.New(sid).String(), Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/api/auth/logout",
		Summary:       "End the caller's browser session",
		Tags:          []string{"Session"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct{}) (*LogoutOutput, error) {
		s.logout(ctx, sessionIDFromContext(ctx), remoteAddrFromContext(ctx))
		return &LogoutOutput{SetCookie: s.cookie.Expired().String()}, nil
	})
}

func (s *Server) sessionBody(st session.State) SessionBody {
	body := SessionBody{
		Authenticated: st.IsAuthenticated,
		Loading:       st.IsLoading,
		Source:        string(st.Source),
		User:          st.User,
	}
	if st.User != nil {
		body.Role = st.User.Role()
		body.Landing = s.landing(st.User)
	}
	return body
}

// login signs in against the events API and stores a new session. It returns
// the new session ID.
func (s *Server) login(ctx context.Context, email, password, ip string) (string, *auth.Identity, error) {
	email = strings.TrimSpace(email)
	res, err := s.authn.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			loginsTotal.WithLabelValues("denied").Inc()
			audit.Event{
				Actor:  email,
				Action: "login",
				Status: "denied",
				Reason: "invalid_credentials",
				IP:     ip,
			}.Warn("Audit Log: Login Failed")
			return "", nil, errInvalidCredentials
		}
		loginsTotal.WithLabelValues("error").Inc()
		slog.Error("events API login failed", "error", err)
		return "", nil, fmt.Errorf("login: %w", err)
	}

	id := res.User
	if id == nil {
		id = &auth.Identity{Email: email}
	}
	sid := auth.NewSessionID()
	if err := s.store.Cache(sid).Set(ctx, session.Entry{Token: res.Token, Identity: id}); err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		slog.Error("store session failed", "error", err)
		return "", nil, fmt.Errorf("store session: %w", err)
	}

	loginsTotal.WithLabelValues("ok").Inc()
	audit.Event{
		Actor:   id.Email,
		Action:  "login",
		Status:  "granted",
		Role:    id.Role(),
		IP:      ip,
		Session: auth.HashToken(sid)[:12],
	}.Info("Audit Log: Login")
	return sid, id, nil
}

// logout ends sessionID everywhere: the events API token is revoked (best
// effort), the stored entry cleared and the live resolver released.
func (s *Server) logout(ctx context.Context, sessionID, ip string) {
	if sessionID == "" {
		return
	}
	cache := s.store.Cache(sessionID)

	actor := "anonymous"
	entry, err := cache.Get(ctx)
	if err != nil {
		slog.Warn("read session on logout", "error", err)
	}
	if entry != nil {
		if entry.Identity != nil {
			actor = entry.Identity.Email
		}
		if entry.Token != "" {
			if err := s.authn.Logout(ctx, entry.Token); err != nil {
				slog.Warn("events API logout failed", "error", err)
			}
		}
	}

	if err := cache.Clear(ctx); err != nil {
		slog.Error("clear session failed", "error", err)
	}
	s.registry.Forget(sessionID)

	audit.Event{
		Actor:   actor,
		Action:  "logout",
		Status:  "granted",
		IP:      ip,
		Session: auth.HashToken(sessionID)[:12],
	}.Info("Audit Log: Logout")
}
