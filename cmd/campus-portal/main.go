package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hatemosphere/campus-portal/internal/api"
	"github.com/hatemosphere/campus-portal/internal/audit"
	"github.com/hatemosphere/campus-portal/internal/config"
	"github.com/hatemosphere/campus-portal/internal/gate"
	"github.com/hatemosphere/campus-portal/internal/remote"
	"github.com/hatemosphere/campus-portal/internal/session"
	"github.com/hatemosphere/campus-portal/internal/storage"
	"github.com/hatemosphere/campus-portal/internal/sweep"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func main() {
	cfg := config.Parse()

	// Configure logging format and level.
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", cfg.LogLevel, err)
		os.Exit(2)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var logHandler slog.Handler
	if cfg.LogFormat == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))

	if !cfg.AuditLogs {
		audit.Enabled = false
	}

	// Open session storage.
	store, err := storage.NewSQLiteStore(cfg.DBPath, storage.SQLiteStoreConfig{
		WatchInterval: cfg.StoreWatch,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}

	client, err := remote.NewClient(cfg.APIURL, remote.WithTimeout(cfg.APITimeout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid events API client: %v\n", err)
		os.Exit(1)
	}

	routes := gate.DefaultRoutes()
	if cfg.RolesConfigPath != "" {
		routes, err = gate.LoadRoutes(cfg.RolesConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load roles config: %v\n", err)
			os.Exit(1)
		}
		slog.Info("roles config loaded", "config", cfg.RolesConfigPath)
	}
	if cfg.LoginPath != "" {
		routes.Login = cfg.LoginPath
	}
	if cfg.FallbackPath != "" {
		routes.Fallback = cfg.FallbackPath
	}

	registry, err := session.NewRegistry(store, client, session.RegistryConfig{
		Size: cfg.ResolverCacheSize,
		ResolverOptions: []session.Option{
			session.WithPollInterval(cfg.PollInterval),
			session.WithFetchTimeout(cfg.APITimeout),
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create session registry: %v\n", err)
		os.Exit(1)
	}

	api.RegisterLiveResolversGauge(func() float64 {
		return float64(registry.Len())
	})

	sweeper := sweep.NewScheduler("sessions",
		sweep.Sessions(store, registry, cfg.SessionTTL, cfg.ResolverIdleTTL),
		cfg.SweepInterval,
	)

	serverOpts := []api.ServerOption{
		api.WithRoutes(routes),
		api.WithCookie(gate.Cookie{
			Name:   cfg.SessionCookie,
			Secure: cfg.SecureCookie,
			TTL:    cfg.SessionTTL,
		}),
	}

	// Initialize OpenTelemetry tracing if configured.
	var tp *sdktrace.TracerProvider
	if cfg.OTelServiceName != "" {
		var initErr error
		tp, initErr = initTracer(context.Background(), cfg.OTelServiceName)
		if initErr != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize OpenTelemetry: %v\n", initErr)
			os.Exit(1)
		}
		slog.Info("OpenTelemetry tracing enabled", "service", cfg.OTelServiceName)
	}

	// When management-addr is set, health/metrics move to a separate server.
	if cfg.ManagementAddr != "" {
		serverOpts = append(serverOpts, api.WithSkipManagementRoutes())
	}

	srv := api.NewServer(store, registry, client, serverOpts...)

	handler := srv.Router()
	if tp != nil {
		handler = otelhttp.NewHandler(handler, "campus-portal")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var mgmtServer *http.Server
	if cfg.ManagementAddr != "" {
		mgmtServer = &http.Server{
			Addr:              cfg.ManagementAddr,
			Handler:           api.ManagementHandler(store),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("management server starting", "addr", cfg.ManagementAddr)
			if err := mgmtServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("management server error", "error", err)
			}
		}()
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if mgmtServer != nil {
			if err := mgmtServer.Shutdown(ctx); err != nil {
				slog.Error("management server shutdown error", "error", err)
			}
		}
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
		close(done)
	}()

	slog.Info("campus portal starting", "addr", cfg.Addr, "events_api", cfg.APIURL) //nolint:gosec // structured logger

	if cfg.TLS {
		err = httpServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done

	// Stop housekeeping, release resolvers, flush traces and close storage.
	sweeper.Shutdown()
	registry.Close()
	if tp != nil {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("tracer provider shutdown error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		slog.Error("close storage", "error", err)
	}
	slog.Info("shutdown complete")
}

// initTracer sets up an OTLP gRPC trace exporter and returns the TracerProvider.
// Exporter endpoint is configured via standard OTEL_EXPORTER_OTLP_ENDPOINT env var
// (default: localhost:4317).
func initTracer(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}
