// Package metrics provides Prometheus metrics for SDK operations.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeAuthFailure     = "auth_failure"
	OutcomeHTTPError       = "http_error"
	OutcomeConnectionError = "connection_error"
)

// Refresh results.
const (
	RefreshRenewed     = "renewed"
	RefreshUnavailable = "unavailable"
	RefreshError       = "error"
)

// Metrics holds all Prometheus metrics for SDK operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled bool

	// Dispatch metrics
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	retriesTotal     prometheus.Counter

	// Underlying HTTP call metrics
	httpCallsTotal *prometheus.CounterVec

	// Auth metrics
	authFailuresTotal    *prometheus.CounterVec
	refreshAttemptsTotal *prometheus.CounterVec
	terminationsTotal    *prometheus.CounterVec
}

// New creates and registers Prometheus metrics on reg, or on the default
// registerer when reg is nil. If enabled is false, returns a no-op Metrics.
func New(enabled bool, reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m.dispatchTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "contaconmigo_dispatch_total",
		Help: "Total authenticated dispatches by outcome",
	}, []string{"outcome"})

	m.dispatchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "contaconmigo_dispatch_duration_seconds",
		Help:    "Authenticated dispatch duration in seconds, retries included",
		Buckets: prometheus.DefBuckets,
	})

	m.retriesTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "contaconmigo_dispatch_retries_total",
		Help: "Total post-refresh retries after a 401",
	})

	m.httpCallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "contaconmigo_http_calls_total",
		Help: "Total underlying HTTP calls by method and status",
	}, []string{"method", "status"})

	m.authFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "contaconmigo_auth_failures_total",
		Help: "Total auth failures by reason",
	}, []string{"reason"})

	m.refreshAttemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "contaconmigo_refresh_attempts_total",
		Help: "Total token refresh attempts by result",
	}, []string{"result"})

	m.terminationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "contaconmigo_session_terminations_total",
		Help: "Total session terminations by reason",
	}, []string{"reason"})

	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// RecordDispatch records the outcome and duration of one dispatch.
func (m *Metrics) RecordDispatch(outcome string, durationSeconds float64) {
	if !m.on() {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
	m.dispatchDuration.Observe(durationSeconds)
}

// RecordRetry records a post-refresh retry.
func (m *Metrics) RecordRetry() {
	if !m.on() {
		return
	}
	m.retriesTotal.Inc()
}

// RecordHTTPCall records one underlying HTTP call. Status 0 means no
// response was received.
func (m *Metrics) RecordHTTPCall(method string, status int) {
	if !m.on() {
		return
	}
	m.httpCallsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// RecordAuthFailure records a failed authenticated request.
func (m *Metrics) RecordAuthFailure(reason string) {
	if !m.on() {
		return
	}
	m.authFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRefresh records a refresh attempt result.
func (m *Metrics) RecordRefresh(result string) {
	if !m.on() {
		return
	}
	m.refreshAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordTermination records a session termination.
func (m *Metrics) RecordTermination(reason string) {
	if !m.on() {
		return
	}
	m.terminationsTotal.WithLabelValues(reason).Inc()
}
