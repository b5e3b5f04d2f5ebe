// Package contaconmigo provides a Go SDK for the contaconmigo counter/template
// tracking backend.
//
// Users define templates (named sets of typed fields), submit dated entries
// against them and review aggregated totals. Every operation is an HTTP call
// to the backend; requests that need identity go through an authenticated
// dispatcher that checks token expiry locally, injects the bearer header and
// retries once after a refresh attempt on 401.
//
// Service implementations are injected via Option functions. The remote
// package wires the HTTP implementations:
//
//	client, err := remote.NewClient(
//	    contaconmigo.Config{BaseURL: "https://api.example.com"},
//	    credential.NewMemoryStore(),
//	)
package contaconmigo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Client is the main entry point for SDK operations.
type Client struct {
	config    Config
	logger    *slog.Logger
	session   SessionManager
	auth      AuthService
	templates TemplateService
	closers   []io.Closer
}

// Config holds connection and behavior configuration.
type Config struct {
	// BaseURL is the backend address, e.g. "http://localhost:8000".
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds each underlying HTTP call. Default: 10 seconds.
	Timeout time.Duration `mapstructure:"timeout"`

	// ExpiryThreshold is the window in which a token counts as "expiring
	// soon". Default: 5 minutes.
	ExpiryThreshold time.Duration `mapstructure:"expiry_threshold"`

	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`

	// RateBurst is the limiter burst size. Default: 1 when RateLimit is set.
	RateBurst int `mapstructure:"rate_burst"`

	// TotalsConcurrency bounds parallel template loads in AllTotals.
	// Default: 4.
	TotalsConcurrency int `mapstructure:"totals_concurrency"`

	// UserAgent is sent with every request when set.
	UserAgent string `mapstructure:"user_agent"`
}

// Defaults.
const (
	DefaultBaseURL           = "http://localhost:8000"
	DefaultTimeout           = 10 * time.Second
	DefaultExpiryThreshold   = 5 * time.Minute
	DefaultTotalsConcurrency = 4
)

// WithDefaults returns a copy of c with zero fields set to their defaults.
// BaseURL is left alone so that NewClient can reject a missing one.
func (c Config) WithDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ExpiryThreshold == 0 {
		c.ExpiryThreshold = DefaultExpiryThreshold
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.TotalsConcurrency <= 0 {
		c.TotalsConcurrency = DefaultTotalsConcurrency
	}
	return c
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSession sets the session manager.
func WithSession(s SessionManager) Option {
	return func(c *Client) { c.session = s }
}

// WithAuthService sets the identity service implementation.
func WithAuthService(a AuthService) Option {
	return func(c *Client) { c.auth = a }
}

// WithTemplateService sets the template service implementation.
func WithTemplateService(t TemplateService) Option {
	return func(c *Client) { c.templates = t }
}

// WithCloser registers a resource released by Close, such as a Redis
// connection backing the credential store.
func WithCloser(cl io.Closer) Option {
	return func(c *Client) { c.closers = append(c.closers, cl) }
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("contaconmigo: BaseURL is required")
	}
	cfg = cfg.WithDefaults()

	c := &Client{config: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Session returns the session manager, or nil if not configured.
func (c *Client) Session() SessionManager { return c.session }

// Auth returns the identity service, or nil if not configured.
func (c *Client) Auth() AuthService { return c.auth }

// Templates returns the template service, or nil if not configured.
func (c *Client) Templates() TemplateService { return c.templates }

// HealthCheck reports whether the client is configured and the backend
// answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.auth == nil {
		return fmt.Errorf("contaconmigo: auth service not configured")
	}
	return c.auth.Health(ctx)
}

// Close releases all resources held by the client.
// Any injected service that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{c.session, c.auth, c.templates}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
