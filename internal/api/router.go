package api

import (
	"context"
	stdjson "encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/hatemosphere/campus-portal/internal/auth"
	"github.com/hatemosphere/campus-portal/internal/gate"
	"github.com/hatemosphere/campus-portal/internal/remote"
	"github.com/hatemosphere/campus-portal/internal/session"
)

// Authenticator is the part of the events API the login flow uses.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*remote.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the portal's HTTP server.
type Server struct {
	store    session.Opener
	registry *session.Registry
	authn    Authenticator
	routes   gate.Routes
	cookie   gate.Cookie
	pages    []Page
	gate     *gate.Middleware
	humaAPI  huma.API

	skipManagementRoutes bool
}

// NewServer creates a new server. Sessions are written to store and resolved
// through registry, which must be built on the same store.
func NewServer(store session.Opener, registry *session.Registry, authn Authenticator, opts ...ServerOption) *Server {
	s := &Server{
		store:    store,
		registry: registry,
		authn:    authn,
		routes:   gate.DefaultRoutes(),
		cookie:   gate.Cookie{Name: "campus_session", TTL: 7 * 24 * time.Hour},
		pages:    DefaultPages(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gate = gate.NewMiddleware(registry, s.cookie, s.routes)
	return s
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithRoutes sets the gate's redirect targets.
func WithRoutes(r gate.Routes) ServerOption {
	return func(s *Server) { s.routes = r }
}

// WithCookie sets the session cookie parameters.
func WithCookie(c gate.Cookie) ServerOption {
	return func(s *Server) { s.cookie = c }
}

// WithPages replaces the gated page set.
func WithPages(pages []Page) ServerOption {
	return func(s *Server) { s.pages = pages }
}

// WithSkipManagementRoutes leaves /healthz and /metrics to a separate
// management listener.
func WithSkipManagementRoutes() ServerOption {
	return func(s *Server) { s.skipManagementRoutes = true }
}

// humaJSONFormat uses stdlib encoding/json for huma request/response serialization.
var humaJSONFormat = huma.Format{
	Marshal: func(w io.Writer, v any) error {
		return stdjson.NewEncoder(w).Encode(v)
	},
	Unmarshal: stdjson.Unmarshal,
}

func newHumaConfig() huma.Config {
	registry := huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	return huma.Config{
		OpenAPI: &huma.OpenAPI{
			OpenAPI: "3.1.0",
			Info: &huma.Info{
				Title:   "Campus Portal API",
				Version: "0.1.0",
			},
			Components: &huma.Components{
				Schemas: registry,
			},
		},
		OpenAPIPath:   "", // served by getOpenAPISpec
		DocsPath:      "",
		SchemasPath:   "",
		Formats:       map[string]huma.Format{"application/json": humaJSONFormat, "json": humaJSONFormat},
		DefaultFormat: "application/json",
	}
}

// Router returns the configured HTTP handler with all endpoints.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	api := humago.New(mux, newHumaConfig())
	api.UseMiddleware(metricsHumaMiddleware)
	api.UseMiddleware(s.sessionHumaMiddleware)
	s.humaAPI = api

	if !s.skipManagementRoutes {
		s.registerManagement(api)
	}
	s.registerOpenAPI(api)
	s.registerSessionAPI(api)
	s.registerAccessWatch(api)

	// Browser routes serve HTML, so they live on the raw mux.
	s.registerLoginPages(mux)
	s.registerPages(mux)

	// HTTP-level middleware (outermost applied last).
	var handler http.Handler = mux
	handler = gzipDecompressor(handler)
	handler = requestLogger(handler)
	handler = realIP(handler)
	handler = recoverer(handler)
	return handler
}

func (s *Server) registerManagement(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
		if p, ok := s.store.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return nil, huma.Error503ServiceUnavailable("session store unavailable")
			}
		}
		out := &HealthCheckOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getMetrics",
		Method:      http.MethodGet,
		Path:        "/metrics",
		Tags:        []string{"Meta"},
	}, func(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
		return &huma.StreamResponse{
			Body: func(ctx huma.Context) {
				rec := httptest.NewRecorder()
				MetricsHandler().ServeHTTP(rec, &http.Request{})
				for k, vals := range rec.Header() {
					for _, v := range vals {
						ctx.SetHeader(k, v)
					}
				}
				_, _ = ctx.BodyWriter().Write(rec.Body.Bytes())
			},
		}, nil
	})
}

func (s *Server) registerOpenAPI(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getOpenAPISpec",
		Method:      http.MethodGet,
		Path:        "/api/openapi",
		Tags:        []string{"Meta"},
	}, func(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
		return &huma.StreamResponse{
			Body: func(ctx huma.Context) {
				ctx.SetHeader("Content-Type", "application/json")
				data, _ := stdjson.Marshal(s.humaAPI.OpenAPI())
				_, _ = ctx.BodyWriter().Write(data)
			},
		}, nil
	})
}

// ManagementHandler serves health, readiness and metrics on a separate
// listener.
func ManagementHandler(store Pinger) http.Handler {
	mux := http.NewServeMux()
	writeStatus := func(w http.ResponseWriter, code int, status string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = stdjson.NewEncoder(w).Encode(map[string]string{"status": status})
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "error")
				return
			}
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.Handle("GET /metrics", MetricsHandler())
	return mux
}

// state resolves the browser session behind sessionID. An empty ID is a
// settled, signed-out state.
func (s *Server) state(ctx context.Context, sessionID string) session.State {
	if sessionID == "" {
		return session.State{}
	}
	return s.registry.Resolver(ctx, sessionID).State()
}

// landing is where a signed-in identity goes after login.
func (s *Server) landing(id *auth.Identity) string {
	return s.routes.LandingFor(id.Role())
}
