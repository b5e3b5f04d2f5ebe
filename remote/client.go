// Package remote wires the HTTP implementations of the contaconmigo services
// into a ready-to-use client.
//
// Usage:
//
//	client, err := remote.NewClient(
//	    contaconmigo.Config{BaseURL: "http://localhost:8000"},
//	    credential.NewMemoryStore(),
//	    remote.WithOnTerminate(func(ctx context.Context, r contaconmigo.AuthReason) {
//	        showLogin()
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	_ = client.Session().Restore(ctx)
//	templates, err := client.Templates().List(ctx)
package remote

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/audit"
	"github.com/contaconmigo/contaconmigo-go/auth"
	"github.com/contaconmigo/contaconmigo-go/httpapi"
	"github.com/contaconmigo/contaconmigo-go/metrics"
	"github.com/contaconmigo/contaconmigo-go/session"
	"github.com/contaconmigo/contaconmigo-go/templates"
	"github.com/contaconmigo/contaconmigo-go/token"
)

type options struct {
	logger      *slog.Logger
	httpClient  *http.Client
	metrics     *metrics.Metrics
	audit       *audit.Logger
	refresher   contaconmigo.Refresher
	onTerminate []session.TerminateFunc
	closers     []io.Closer
}

// Option configures the remote client.
type Option func(*options)

// WithLogger sets a structured logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the HTTP client. Its timeout overrides Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAudit sets the audit logger for session events. The caller owns it
// and must close it.
func WithAudit(a *audit.Logger) Option {
	return func(o *options) { o.audit = a }
}

// WithRefresher replaces the default refresher, which never renews.
func WithRefresher(r contaconmigo.Refresher) Option {
	return func(o *options) { o.refresher = r }
}

// WithCloser hands a resource to the client, released by Client.Close.
func WithCloser(c io.Closer) Option {
	return func(o *options) { o.closers = append(o.closers, c) }
}

// WithOnTerminate registers a callback run once each time the session ends.
func WithOnTerminate(fn session.TerminateFunc) Option {
	return func(o *options) { o.onTerminate = append(o.onTerminate, fn) }
}

// NewClient builds a client talking to cfg.BaseURL with credentials kept
// in store. The session starts logged out; call Session().Restore to pick
// up a persisted one.
func NewClient(cfg contaconmigo.Config, store contaconmigo.CredentialStore, opts ...Option) (*contaconmigo.Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("contaconmigo/remote: BaseURL is required")
	}
	if store == nil {
		return nil, fmt.Errorf("contaconmigo/remote: credential store is required")
	}
	cfg = cfg.WithDefaults()

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	callerOpts := []httpapi.Option{
		httpapi.WithHTTPClient(o.httpClient),
		httpapi.WithMetrics(o.metrics),
		httpapi.WithLogger(o.logger),
	}
	if cfg.UserAgent != "" {
		callerOpts = append(callerOpts, httpapi.WithUserAgent(cfg.UserAgent))
	}
	if cfg.RateLimit > 0 {
		callerOpts = append(callerOpts, httpapi.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)))
	}
	caller := httpapi.NewCaller(cfg.BaseURL, callerOpts...)

	inspector := token.NewInspector(token.WithThreshold(cfg.ExpiryThreshold))

	sessOpts := []session.Option{
		session.WithInspector(inspector),
		session.WithLogger(o.logger),
		session.WithAudit(o.audit),
		session.WithMetrics(o.metrics),
	}
	for _, fn := range o.onTerminate {
		sessOpts = append(sessOpts, session.WithOnTerminate(fn))
	}
	sess := session.New(store, sessOpts...)

	dispOpts := []httpapi.DispatcherOption{
		httpapi.WithInspector(inspector),
		httpapi.WithTerminator(sess),
	}
	if o.refresher != nil {
		dispOpts = append(dispOpts, httpapi.WithRefresher(o.refresher))
	}
	dispatcher := httpapi.NewDispatcher(caller, store, dispOpts...)

	authSvc := auth.New(&authBackend{caller: caller}, sess, store,
		auth.WithLogger(o.logger),
		auth.WithAudit(o.audit),
	)
	tplSvc := templates.New(&templateBackend{dispatcher: dispatcher},
		templates.WithConcurrency(cfg.TotalsConcurrency),
		templates.WithLogger(o.logger),
	)

	clientOpts := []contaconmigo.Option{
		contaconmigo.WithLogger(o.logger),
		contaconmigo.WithSession(sess),
		contaconmigo.WithAuthService(authSvc),
		contaconmigo.WithTemplateService(tplSvc),
	}
	for _, c := range o.closers {
		clientOpts = append(clientOpts, contaconmigo.WithCloser(c))
	}
	return contaconmigo.NewClient(cfg, clientOpts...)
}
