// Package session owns the client's auth state and the session termination
// trigger.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/audit"
	"github.com/contaconmigo/contaconmigo-go/metrics"
	"github.com/contaconmigo/contaconmigo-go/token"
)

// TerminateFunc is notified once per ended session. The presentation layer
// uses it to send the user back to the login screen.
type TerminateFunc func(ctx context.Context, reason contaconmigo.AuthReason)

// Session implements contaconmigo.SessionManager over a CredentialStore.
type Session struct {
	store     contaconmigo.CredentialStore
	inspector *token.Inspector
	logger    *slog.Logger
	audit     *audit.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	loggedIn  bool
	profile   *contaconmigo.UserProfile
	callbacks []TerminateFunc

	sf singleflight.Group
}

// compile-time check
var _ contaconmigo.SessionManager = (*Session)(nil)

// Option configures the Session.
type Option func(*Session)

// WithInspector sets the token inspector used by Restore and CheckExpired.
func WithInspector(i *token.Inspector) Option {
	return func(s *Session) { s.inspector = i }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithAudit sets the audit logger receiving session events.
func WithAudit(a *audit.Logger) Option {
	return func(s *Session) { s.audit = a }
}

// WithMetrics sets the metrics sink for terminations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithOnTerminate registers a termination callback.
func WithOnTerminate(fn TerminateFunc) Option {
	return func(s *Session) { s.callbacks = append(s.callbacks, fn) }
}

// New creates a Session over store. The session starts logged out; call
// Restore to pick up a persisted one.
func New(store contaconmigo.CredentialStore, opts ...Option) *Session {
	s := &Session{
		store:     store,
		inspector: token.NewInspector(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnTerminate registers a termination callback after construction.
func (s *Session) OnTerminate(fn TerminateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Restore loads the persisted session. An absent token leaves the session
// logged out; an expired one is terminated.
func (s *Session) Restore(ctx context.Context) error {
	access := s.accessToken(ctx)
	if access == "" {
		s.mu.Lock()
		s.loggedIn = false
		s.profile = nil
		s.mu.Unlock()
		s.logger.Debug("no stored session")
		return nil
	}

	if s.inspector.IsExpired(access) {
		s.logger.Info("stored session expired")
		return s.Terminate(ctx, contaconmigo.ReasonExpired)
	}

	profile, err := s.store.Profile(ctx)
	if err != nil {
		s.logger.Warn("credential store read failed", "error", err)
		profile = nil
	}

	s.mu.Lock()
	s.loggedIn = true
	s.profile = copyProfile(profile)
	s.mu.Unlock()

	ev := audit.Event{Action: audit.ActionRestore, Result: audit.ResultSuccess}
	if profile != nil {
		ev.UserID = profile.ID
		ev.Email = profile.Email
	}
	s.audit.LogContext(ctx, ev)
	s.logger.Info("session restored", "seconds_to_expiry", s.inspector.SecondsToExpiry(access))
	return nil
}

// Login persists a freshly issued session.
func (s *Session) Login(ctx context.Context, tokens contaconmigo.Tokens, profile contaconmigo.UserProfile) error {
	if tokens.AccessToken == "" {
		return errors.New("contaconmigo/session: access token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveSession(ctx, tokens, profile); err != nil {
		s.audit.LogContext(ctx, audit.Event{
			Action: audit.ActionLogin,
			Result: audit.ResultFailure,
			UserID: profile.ID,
			Email:  profile.Email,
			Error:  err.Error(),
		})
		return fmt.Errorf("contaconmigo/session: save session: %w", err)
	}
	s.loggedIn = true
	s.profile = copyProfile(&profile)

	s.audit.LogContext(ctx, audit.Event{
		Action: audit.ActionLogin,
		Result: audit.ResultSuccess,
		UserID: profile.ID,
		Email:  profile.Email,
	})
	s.logger.Info("session started", "user_id", profile.ID)
	return nil
}

// Logout clears the session at the user's request and notifies the
// termination callbacks with ReasonLogout.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	userID := ""
	if s.profile != nil {
		userID = s.profile.ID
	}
	err := s.store.ClearSession(ctx)
	s.loggedIn = false
	s.profile = nil
	callbacks := append([]TerminateFunc(nil), s.callbacks...)
	s.mu.Unlock()

	ev := audit.Event{Action: audit.ActionLogout, Result: audit.ResultSuccess, UserID: userID}
	if err != nil {
		ev.Result = audit.ResultFailure
		ev.Error = err.Error()
	}
	s.audit.LogContext(ctx, ev)

	for _, fn := range callbacks {
		fn(ctx, contaconmigo.ReasonLogout)
	}
	if err != nil {
		return fmt.Errorf("contaconmigo/session: clear session: %w", err)
	}
	s.logger.Info("session ended", "reason", contaconmigo.ReasonLogout)
	return nil
}

// Terminate ends an active session after an unrecoverable auth failure: it
// clears the store, marks the session logged out and notifies the callbacks.
// Concurrent calls collapse into one, and calls on an already ended session
// do nothing, so N racing failures clear and notify exactly once.
func (s *Session) Terminate(ctx context.Context, reason contaconmigo.AuthReason) error {
	_, err, _ := s.sf.Do("terminate", func() (any, error) {
		return nil, s.terminate(ctx, reason)
	})
	return err
}

func (s *Session) terminate(ctx context.Context, reason contaconmigo.AuthReason) error {
	s.mu.Lock()
	if !s.loggedIn && s.accessToken(ctx) == "" {
		s.mu.Unlock()
		s.logger.Debug("session already ended", "reason", reason)
		return nil
	}

	userID := ""
	if s.profile != nil {
		userID = s.profile.ID
	}
	err := s.store.ClearSession(ctx)
	s.loggedIn = false
	s.profile = nil
	callbacks := append([]TerminateFunc(nil), s.callbacks...)
	s.mu.Unlock()

	s.metrics.RecordTermination(string(reason))
	ev := audit.Event{
		Action: audit.ActionTerminated,
		Result: audit.ResultSuccess,
		Reason: string(reason),
		UserID: userID,
	}
	if err != nil {
		ev.Result = audit.ResultFailure
		ev.Error = err.Error()
	}
	s.audit.LogContext(ctx, ev)
	s.logger.Warn("session terminated", "reason", reason)

	for _, fn := range callbacks {
		fn(ctx, reason)
	}
	if err != nil {
		return fmt.Errorf("contaconmigo/session: clear session: %w", err)
	}
	return nil
}

// CheckExpired terminates the session when the stored token is absent or
// expired. It reports whether the session is unusable, so callers can stop
// before issuing a request.
func (s *Session) CheckExpired(ctx context.Context) (bool, error) {
	access := s.accessToken(ctx)
	switch {
	case access == "":
		return true, s.Terminate(ctx, contaconmigo.ReasonNoToken)
	case s.inspector.IsExpired(access):
		return true, s.Terminate(ctx, contaconmigo.ReasonExpired)
	default:
		return false, nil
	}
}

// IsLoggedIn reports whether the session holds an access token.
func (s *Session) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Profile returns a copy of the logged-in user, or nil.
func (s *Session) Profile() *contaconmigo.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProfile(s.profile)
}

// accessToken reads the store, mapping errors to "no token".
func (s *Session) accessToken(ctx context.Context) string {
	access, err := s.store.AccessToken(ctx)
	if err != nil {
		s.logger.Warn("credential store read failed", "error", err)
		return ""
	}
	return access
}

func copyProfile(p *contaconmigo.UserProfile) *contaconmigo.UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
