// Package remote is the client of the events API, the REST service that owns
// users, events, clubs and venues. The portal only uses its auth endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/hatemosphere/campus-portal/internal/auth"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// ErrUnauthorized is matched by an *APIError carrying 401.
var ErrUnauthorized = errors.New("events api: unauthorized")

// APIError is a non-2xx answer from the events API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("events api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("events api: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token string         `json:"token"`
	User  *auth.Identity `json:"user"`
}

// envelope is the events API response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport replaces the base HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// Client talks to the events API.
type Client struct {
	baseURL *url.URL
	base    http.RoundTripper
	timeout time.Duration
	group   singleflight.Group
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. https://events.example.edu/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse events api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("events api url must be http or https, got %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		base:    otelhttp.NewTransport(http.DefaultTransport),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchCurrentIdentity returns the identity that token belongs to. Concurrent
// calls for the same token share one request.
func (c *Client) FetchCurrentIdentity(ctx context.Context, token string) (*auth.Identity, error) {
	key := auth.HashToken(token)
	ch := c.group.DoChan(key, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		var id auth.Identity
		if err := c.do(reqCtx, http.MethodGet, "/auth/me", token, nil, &id); err != nil {
			return nil, err
		}
		return &id, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*auth.Identity).Clone(), nil
	}
}

// Login exchanges credentials for an access token and the user's identity.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &res); err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, errors.New("events api: login response has no token")
	}
	return &res, nil
}

// Logout revokes token on the API side.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

func (c *Client) httpClient(token string) *http.Client {
	rt := c.base
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.base,
		}
	}
	return &http.Client{Transport: rt, Timeout: c.timeout}
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient(token).Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	slog.Debug("events api call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return decodeBody(data, out)
}

// decodeBody unwraps the {success, data, message} envelope when present and
// decodes the payload into out. Bare payloads are decoded as is.
func decodeBody(data []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Success != nil {
		if !*env.Success {
			return &APIError{StatusCode: http.StatusOK, Message: env.Message}
		}
		data = env.Data
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Message != "" {
		return env.Message
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
