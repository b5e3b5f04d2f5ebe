// Package httpapi performs JSON requests against the contaconmigo backend.
//
// Caller issues plain requests and maps failures to *contaconmigo.APIError.
// Dispatcher wraps a Caller for requests that need identity: it checks the
// stored token locally, injects the bearer header and performs at most one
// refresh-and-retry cycle after a 401.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/metrics"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 10 << 20

// Request describes one backend call.
type Request struct {
	Method string
	// Path is relative to the base URL, e.g. "/templates/42".
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded when non-nil. A json.RawMessage is sent as is.
	Body any
}

// Caller issues JSON requests against a base URL.
type Caller struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures the Caller.
type Option func(*Caller)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Caller) { c.httpClient = hc }
}

// WithRateLimiter makes every call wait on l first.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Caller) { c.limiter = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Caller) { c.userAgent = ua }
}

// WithMetrics sets the metrics sink shared by the caller and its dispatchers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Caller) { c.metrics = m }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Caller) { c.logger = l }
}

// NewCaller creates a Caller for baseURL.
func NewCaller(baseURL string, opts ...Option) *Caller {
	c := &Caller{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: contaconmigo.DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the base URL requests are resolved against.
func (c *Caller) BaseURL() string { return c.baseURL }

// Do performs req and decodes a JSON response into out when out is non-nil.
// Non-2xx responses return *contaconmigo.APIError with the server detail;
// transport failures return one with StatusConnectionError.
func (c *Caller) Do(ctx context.Context, req Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &contaconmigo.APIError{Status: contaconmigo.StatusConnectionError, Detail: "rate limit wait", Err: err}
		}
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordHTTPCall(httpReq.Method, contaconmigo.StatusConnectionError)
		c.logger.Debug("request failed", "method", httpReq.Method, "path", req.Path, "error", err)
		return &contaconmigo.APIError{
			Status: contaconmigo.StatusConnectionError,
			Detail: "connection error",
			Err:    err,
		}
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.RecordHTTPCall(httpReq.Method, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &contaconmigo.APIError{Status: contaconmigo.StatusConnectionError, Detail: "read response", Err: err}
	}

	c.logger.Debug("response", "method", httpReq.Method, "path", req.Path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &contaconmigo.APIError{Status: resp.StatusCode, Detail: errorDetail(resp.StatusCode, body)}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("contaconmigo/httpapi: decode response: %w", err)
	}
	return nil
}

func (c *Caller) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := encodeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("contaconmigo/httpapi: encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("contaconmigo/httpapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	for k := range req.Header {
		httpReq.Header.Del(k)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(v)
	}
}

// errorDetail extracts the message of an error body shaped {detail: ...}.
// Non-string details are returned as their JSON text; non-JSON bodies as
// trimmed text; empty bodies as the status text.
func errorDetail(status int, body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && len(e.Detail) > 0 && string(e.Detail) != "null" {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil {
			return s
		}
		return string(e.Detail)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "server error"
}
