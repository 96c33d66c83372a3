package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "CAMPUS_PORTAL_"

// Config holds all server configuration.
type Config struct {
	Addr     string // listen address, e.g. ":8080"
	DBPath   string // path to SQLite session database
	TLS      bool
	CertFile string
	KeyFile  string

	// Events API.
	APIURL     string        // base URL of the events API, e.g. https://events.example.edu/api
	APITimeout time.Duration // per-request timeout

	// Access gate.
	RolesConfigPath string // optional roles.yaml with landing pages
	LoginPath       string // overrides the roles file
	FallbackPath    string // overrides the roles file

	// Sessions.
	SessionCookie     string
	SecureCookie      bool
	SessionTTL        time.Duration // stored sessions idle longer than this are purged
	PollInterval      time.Duration // resolver cache re-read interval (0 = subscription only)
	StoreWatch        time.Duration // cross-process change detection interval
	ResolverCacheSize int           // max live resolvers
	ResolverIdleTTL   time.Duration // live resolvers unused this long are released
	SweepInterval     time.Duration // housekeeping interval (0 = disabled)

	// Management and observability.
	ManagementAddr  string // separate listener for health and metrics (empty = main listener)
	OTelServiceName string // enables OTLP tracing when set

	// Logging.
	LogFormat string // "json" (default) or "text"
	LogLevel  string // debug, info, warn, error
	AuditLogs bool   // enable audit logging (default true)
}

// Parse reads flags from the command line and environment overrides from
// CAMPUS_PORTAL_* variables. It exits on invalid configuration.
func Parse() *Config {
	c, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	return c
}

// Load parses args and applies environment overrides read through getenv.
// Environment values win over flags.
func Load(args []string, getenv func(string) string) (*Config, error) {
	c := &Config{}
	fs := flag.NewFlagSet("campus-portal", flag.ContinueOnError)
	fs.StringVar(&c.Addr, "addr", ":8080", "listen address")
	fs.StringVar(&c.DBPath, "db", "campus-portal.db", "SQLite session database path")
	fs.BoolVar(&c.TLS, "tls", false, "enable TLS")
	fs.StringVar(&c.CertFile, "cert", "", "TLS certificate file")
	fs.StringVar(&c.KeyFile, "key", "", "TLS key file")

	fs.StringVar(&c.APIURL, "api-url", "http://localhost:5000/api", "events API base URL")
	fs.DurationVar(&c.APITimeout, "api-timeout", 10*time.Second, "events API request timeout")

	fs.StringVar(&c.RolesConfigPath, "roles-config", "", "path to roles.yaml (empty = built-in landing pages)")
	fs.StringVar(&c.LoginPath, "login-path", "", "redirect target for signed-out users (overrides roles config)")
	fs.StringVar(&c.FallbackPath, "fallback-path", "", "landing page for roles without one (overrides roles config)")

	fs.StringVar(&c.SessionCookie, "session-cookie", "campus_session", "session cookie name")
	fs.BoolVar(&c.SecureCookie, "secure-cookie", false, "mark the session cookie Secure (implied by -tls)")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 7*24*time.Hour, "purge stored sessions idle longer than this")
	fs.DurationVar(&c.PollInterval, "poll-interval", time.Second, "resolver cache re-read interval (0 = disabled)")
	fs.DurationVar(&c.StoreWatch, "store-watch-interval", 500*time.Millisecond, "interval for detecting session writes from other processes")
	fs.IntVar(&c.ResolverCacheSize, "resolver-cache-size", 1024, "max live session resolvers")
	fs.DurationVar(&c.ResolverIdleTTL, "resolver-idle-ttl", 15*time.Minute, "release resolvers unused for this long")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", 5*time.Minute, "housekeeping interval (0 = disabled)")

	fs.StringVar(&c.ManagementAddr, "management-addr", "", "separate listen address for health and metrics")
	fs.StringVar(&c.OTelServiceName, "otel-service-name", "", "enable OpenTelemetry tracing with this service name")

	fs.StringVar(&c.LogFormat, "log-format", "json", "log format: json or text")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&c.AuditLogs, "audit-logs", true, "enable structured audit logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Allow env overrides.
	envString(getenv, "ADDR", &c.Addr)
	envString(getenv, "DB", &c.DBPath)
	envBool(getenv, "TLS", &c.TLS)
	envString(getenv, "CERT", &c.CertFile)
	envString(getenv, "KEY", &c.KeyFile)
	envString(getenv, "API_URL", &c.APIURL)
	envDuration(getenv, "API_TIMEOUT", &c.APITimeout)
	envString(getenv, "ROLES_CONFIG", &c.RolesConfigPath)
	envString(getenv, "LOGIN_PATH", &c.LoginPath)
	envString(getenv, "FALLBACK_PATH", &c.FallbackPath)
	envString(getenv, "SESSION_COOKIE", &c.SessionCookie)
	envBool(getenv, "SECURE_COOKIE", &c.SecureCookie)
	envDuration(getenv, "SESSION_TTL", &c.SessionTTL)
	envDuration(getenv, "POLL_INTERVAL", &c.PollInterval)
	envDuration(getenv, "STORE_WATCH_INTERVAL", &c.StoreWatch)
	envInt(getenv, "RESOLVER_CACHE_SIZE", &c.ResolverCacheSize)
	envDuration(getenv, "RESOLVER_IDLE_TTL", &c.ResolverIdleTTL)
	envDuration(getenv, "SWEEP_INTERVAL", &c.SweepInterval)
	envString(getenv, "MANAGEMENT_ADDR", &c.ManagementAddr)
	envString(getenv, "OTEL_SERVICE_NAME", &c.OTelServiceName)
	envString(getenv, "LOG_FORMAT", &c.LogFormat)
	envString(getenv, "LOG_LEVEL", &c.LogLevel)
	envBool(getenv, "AUDIT_LOGS", &c.AuditLogs)

	if c.TLS {
		c.SecureCookie = true
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api-url must be an absolute http(s) URL, got %q", c.APIURL))
	}
	if c.TLS && (c.CertFile == "" || c.KeyFile == "") {
		errs = append(errs, errors.New("tls requires cert and key"))
	}
	for name, p := range map[string]string{"login-path": c.LoginPath, "fallback-path": c.FallbackPath} {
		if p != "" && !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s must start with /, got %q", name, p))
		}
	}
	if c.SessionCookie == "" {
		errs = append(errs, errors.New("session-cookie must not be empty"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log-format must be json or text, got %q", c.LogFormat))
	}
	if c.PollInterval < 0 || c.SweepInterval < 0 || c.APITimeout <= 0 {
		errs = append(errs, errors.New("poll-interval and sweep-interval must not be negative, api-timeout must be positive"))
	}
	return errors.Join(errs...)
}

func envString(getenv func(string) string, name string, dst *string) {
	if v := getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envBool(getenv func(string) string, name string, dst *bool) {
	if v := getenv(envPrefix + name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(getenv func(string) string, name string, dst *int) {
	if v := getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(getenv func(string) string, name string, dst *time.Duration) {
	if v := getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
