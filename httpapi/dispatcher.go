package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/metrics"
	"github.com/contaconmigo/contaconmigo-go/token"
)

// HeaderRequestID carries the dispatch request ID. A retry reuses it.
const HeaderRequestID = "X-Request-ID"

// Dispatcher performs requests that require a bearer token.
type Dispatcher struct {
	caller     *Caller
	store      contaconmigo.CredentialStore
	inspector  *token.Inspector
	refresher  contaconmigo.Refresher
	terminator contaconmigo.SessionTerminator
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInspector sets the token inspector. Default: token.NewInspector().
func WithInspector(i *token.Inspector) DispatcherOption {
	return func(d *Dispatcher) { d.inspector = i }
}

// WithRefresher sets the token refresher. Default: a StoreRefresher, which
// never renews.
func WithRefresher(r contaconmigo.Refresher) DispatcherOption {
	return func(d *Dispatcher) { d.refresher = r }
}

// WithTerminator sets who is told to end the session on an auth failure.
func WithTerminator(t contaconmigo.SessionTerminator) DispatcherOption {
	return func(d *Dispatcher) { d.terminator = t }
}

// NewDispatcher creates a Dispatcher sending through caller and reading
// credentials from store.
func NewDispatcher(caller *Caller, store contaconmigo.CredentialStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		caller:    caller,
		store:     store,
		inspector: token.NewInspector(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.refresher == nil {
		d.refresher = NewStoreRefresher(store, caller.logger)
	}
	return d
}

// Dispatch performs req with the stored access token and decodes the
// response into out.
//
// It returns *contaconmigo.AuthFailure when identity cannot be proven (no
// token, expired token that could not be refreshed, or a 401 that survived
// the single refresh-and-retry cycle). Every auth failure is passed to the
// terminator before returning. Other failures are *contaconmigo.APIError.
// At most two underlying HTTP calls are made.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, out any) error {
	start := time.Now()

	requestID := contaconmigo.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := d.caller.logger.With("request_id", requestID, "method", req.Method, "path", req.Path)

	err := d.dispatch(ctx, log, requestID, req, out)
	d.caller.metrics.RecordDispatch(outcome(err), time.Since(start).Seconds())

	var af *contaconmigo.AuthFailure
	if errors.As(err, &af) {
		d.caller.metrics.RecordAuthFailure(string(af.Reason))
		log.Warn("auth failure", "reason", af.Reason)
		if d.terminator != nil {
			if terr := d.terminator.Terminate(ctx, af.Reason); terr != nil {
				log.Error("session termination failed", "error", terr)
			}
		}
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, requestID string, req Request, out any) error {
	access, err := d.store.AccessToken(ctx)
	if err != nil {
		log.Warn("credential store read failed", "error", err)
		access = ""
	}
	if access == "" {
		return &contaconmigo.AuthFailure{Reason: contaconmigo.ReasonNoToken}
	}

	refreshed := false
	info := d.inspector.Info(access)
	log.Debug("token checked",
		"expired", info.Expired,
		"seconds_to_expiry", info.SecondsToExpiry,
		"expires_soon", info.ExpiresWithinThreshold)

	if info.Expired {
		refreshed = true
		renewed := d.refresh(ctx, log)
		if renewed == "" {
			return &contaconmigo.AuthFailure{Reason: contaconmigo.ReasonExpiredAndRefreshFailed}
		}
		access = renewed
	}

	err = d.call(ctx, requestID, access, req, out)
	if !isUnauthorized(err) {
		return err
	}
	if refreshed {
		return &contaconmigo.AuthFailure{Reason: contaconmigo.ReasonUnauthorized, Err: err}
	}

	log.Info("received 401, attempting refresh")
	renewed := d.refresh(ctx, log)
	if renewed == "" {
		return &contaconmigo.AuthFailure{Reason: contaconmigo.ReasonUnauthorized, Err: err}
	}

	d.caller.metrics.RecordRetry()
	err = d.call(ctx, requestID, renewed, req, out)
	if isUnauthorized(err) {
		return &contaconmigo.AuthFailure{Reason: contaconmigo.ReasonUnauthorized, Err: err}
	}
	return err
}

// call issues one underlying request. Authorization is set last so caller
// headers cannot replace it.
func (d *Dispatcher) call(ctx context.Context, requestID, access string, req Request, out any) error {
	// Add canonicalizes keys, so a lower-case caller key cannot sit beside
	// the one set below.
	h := make(http.Header, len(req.Header)+2)
	for k, vs := range req.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set(HeaderRequestID, requestID)
	h.Set("Authorization", "Bearer "+access)
	req.Header = h
	return d.caller.Do(ctx, req, out)
}

func (d *Dispatcher) refresh(ctx context.Context, log *slog.Logger) string {
	renewed, err := d.refresher.Refresh(ctx)
	switch {
	case err != nil:
		d.caller.metrics.RecordRefresh(metrics.RefreshError)
		log.Warn("token refresh failed", "error", err)
		return ""
	case renewed == "":
		d.caller.metrics.RecordRefresh(metrics.RefreshUnavailable)
		log.Info("token refresh unavailable")
		return ""
	default:
		d.caller.metrics.RecordRefresh(metrics.RefreshRenewed)
		log.Info("token refreshed")
		return renewed
	}
}

func isUnauthorized(err error) bool {
	var ae *contaconmigo.APIError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case contaconmigo.IsAuthFailure(err):
		return metrics.OutcomeAuthFailure
	case contaconmigo.IsConnectionError(err):
		return metrics.OutcomeConnectionError
	default:
		return metrics.OutcomeHTTPError
	}
}
