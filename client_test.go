package contaconmigo_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := contaconmigo.NewClient(contaconmigo.Config{})
	if err == nil {
		t.Fatal("NewClient() expected error when BaseURL is empty")
	}
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	c, err := contaconmigo.NewClient(contaconmigo.Config{BaseURL: "http://localhost:8000"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	cfg := c.Config()
	if cfg.Timeout != contaconmigo.DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, contaconmigo.DefaultTimeout)
	}
	if cfg.ExpiryThreshold != 5*time.Minute {
		t.Errorf("ExpiryThreshold = %v, want %v", cfg.ExpiryThreshold, 5*time.Minute)
	}
	if cfg.TotalsConcurrency != contaconmigo.DefaultTotalsConcurrency {
		t.Errorf("TotalsConcurrency = %d, want %d", cfg.TotalsConcurrency, contaconmigo.DefaultTotalsConcurrency)
	}
	if cfg.RateBurst != 0 {
		t.Errorf("RateBurst = %d, want 0 without a rate limit", cfg.RateBurst)
	}
}

func TestConfig_WithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := contaconmigo.Config{
		BaseURL:   "http://api",
		Timeout:   time.Second,
		RateLimit: 5,
	}.WithDefaults()
	if cfg.Timeout != time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, time.Second)
	}
	if cfg.RateBurst != 1 {
		t.Errorf("RateBurst = %d, want 1 when RateLimit is set", cfg.RateBurst)
	}
}

func TestNewClient_NilServicesBeforeInjection(t *testing.T) {
	c, _ := contaconmigo.NewClient(contaconmigo.Config{BaseURL: "http://localhost:8000"})

	if c.Session() != nil {
		t.Error("Session() should be nil before injection")
	}
	if c.Auth() != nil {
		t.Error("Auth() should be nil before injection")
	}
	if c.Templates() != nil {
		t.Error("Templates() should be nil before injection")
	}
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() expected error without an auth service")
	}
}

type closer struct {
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestClose_NoErrorWithoutClosers(t *testing.T) {
	c, _ := contaconmigo.NewClient(contaconmigo.Config{BaseURL: "http://localhost:8000"})
	if err := c.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestClose_ReleasesRegisteredClosers(t *testing.T) {
	first := &closer{err: errors.New("boom")}
	second := &closer{}
	c, _ := contaconmigo.NewClient(contaconmigo.Config{BaseURL: "http://localhost:8000"},
		contaconmigo.WithCloser(first), contaconmigo.WithCloser(second))

	err := c.Close()
	if err == nil || err.Error() != "boom" {
		t.Errorf("Close() error = %v, want boom", err)
	}
	if first.closed != 1 || second.closed != 1 {
		t.Errorf("closed = %d, %d, want 1, 1", first.closed, second.closed)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := contaconmigo.WithRequestID(context.Background(), "req-1")
	if got := contaconmigo.RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext() = %q, want %q", got, "req-1")
	}
	if got := contaconmigo.RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext(empty) = %q, want empty", got)
	}
}

func TestErrorClassification(t *testing.T) {
	auth := fmt.Errorf("list: %w", &contaconmigo.AuthFailure{Reason: contaconmigo.ReasonUnauthorized})
	conn := &contaconmigo.APIError{Status: contaconmigo.StatusConnectionError, Err: errors.New("dial tcp")}
	notFound := &contaconmigo.APIError{Status: http.StatusNotFound, Detail: "Template not found"}

	if !contaconmigo.IsAuthFailure(auth) {
		t.Error("IsAuthFailure() = false for wrapped AuthFailure")
	}
	if got := contaconmigo.AuthReasonOf(auth); got != contaconmigo.ReasonUnauthorized {
		t.Errorf("AuthReasonOf() = %q, want %q", got, contaconmigo.ReasonUnauthorized)
	}
	if got := contaconmigo.StatusOf(auth); got != http.StatusUnauthorized {
		t.Errorf("StatusOf(auth) = %d, want 401", got)
	}
	if !contaconmigo.IsConnectionError(conn) {
		t.Error("IsConnectionError() = false for status 0")
	}
	if contaconmigo.IsConnectionError(notFound) {
		t.Error("IsConnectionError() = true for 404")
	}
	if got := contaconmigo.StatusOf(errors.New("plain")); got != -1 {
		t.Errorf("StatusOf(plain) = %d, want -1", got)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"auth", &contaconmigo.AuthFailure{Reason: contaconmigo.ReasonNoToken}, "Your session has expired. Please log in again."},
		{"connection", &contaconmigo.APIError{Status: 0}, "Connection error. Check your internet connection."},
		{"not found", &contaconmigo.APIError{Status: 404, Detail: "x"}, "The requested resource was not found."},
		{"detail", &contaconmigo.APIError{Status: 400, Detail: "Unknown field: color"}, "Unknown field: color"},
		{"no detail", &contaconmigo.APIError{Status: 418}, "Unknown server error."},
		{"other", errors.New("disk full"), "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contaconmigo.UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
