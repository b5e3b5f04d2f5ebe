// Package auth provides the AuthService implementation: account sign-up,
// login into a session, logout and password recovery.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/audit"
)

// LoginResult is what the backend issues on a successful login.
type LoginResult struct {
	Tokens contaconmigo.Tokens
	User   contaconmigo.UserProfile
}

// Backend defines the contract for pluggable identity backends.
type Backend interface {
	SignUp(ctx context.Context, email, password string) (*contaconmigo.SignUpResult, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)

	// Logout revokes accessToken server-side. An empty token is sent
	// without an Authorization header.
	Logout(ctx context.Context, accessToken string) error

	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, accessToken, newPassword string) error
	Health(ctx context.Context) error
}

// Service implements contaconmigo.AuthService with a configurable backend.
type Service struct {
	backend Backend
	session contaconmigo.SessionManager
	store   contaconmigo.CredentialStore
	logger  *slog.Logger
	audit   *audit.Logger
}

// compile-time check
var _ contaconmigo.AuthService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAudit sets the audit logger receiving sign-up and password events.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// New creates a new AuthService. Logins are stored through session; store
// supplies the token revoked on logout.
func New(backend Backend, session contaconmigo.SessionManager, store contaconmigo.CredentialStore, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		session: session,
		store:   store,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SignUp registers a new account. The password must satisfy
// CheckPassword.
func (s *Service) SignUp(ctx context.Context, email, password string) (*contaconmigo.SignUpResult, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := CheckPassword(password); err != nil {
		return nil, err
	}

	res, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		s.audit.LogContext(ctx, audit.Event{Action: audit.ActionSignUp, Result: audit.ResultFailure, Email: email, Error: err.Error()})
		return nil, fmt.Errorf("contaconmigo/auth: %w", err)
	}
	s.audit.LogContext(ctx, audit.Event{Action: audit.ActionSignUp, Result: audit.ResultSuccess, Email: email, UserID: res.UserID})
	return res, nil
}

// Login authenticates and starts a session with the issued tokens.
func (s *Service) Login(ctx context.Context, email, password string) (*contaconmigo.UserProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("contaconmigo/auth: %w", contaconmigo.ErrEmptyEmail)
	}
	if password == "" {
		return nil, fmt.Errorf("contaconmigo/auth: %w", contaconmigo.ErrEmptyPassword)
	}

	res, err := s.backend.Login(ctx, email, password)
	if err != nil {
		s.audit.LogContext(ctx, audit.Event{Action: audit.ActionLogin, Result: audit.ResultFailure, Email: email, Error: err.Error()})
		return nil, fmt.Errorf("contaconmigo/auth: %w", err)
	}
	if res.Tokens.AccessToken == "" {
		return nil, errors.New("contaconmigo/auth: login response carried no access token")
	}
	if res.User.Email == "" {
		res.User.Email = email
	}

	if err := s.session.Login(ctx, res.Tokens, res.User); err != nil {
		return nil, fmt.Errorf("contaconmigo/auth: %w", err)
	}
	s.logger.Info("logged in", "user_id", res.User.ID)
	user := res.User
	return &user, nil
}

// Logout revokes the token server-side when one is held, then clears the
// local session. A failing server call does not prevent the local logout.
func (s *Service) Logout(ctx context.Context) error {
	access, err := s.store.AccessToken(ctx)
	if err != nil {
		s.logger.Warn("credential store read failed", "error", err)
		access = ""
	}
	if err := s.backend.Logout(ctx, access); err != nil {
		s.logger.Warn("server logout failed, clearing local session anyway", "error", err)
	}
	if err := s.session.Logout(ctx); err != nil {
		return fmt.Errorf("contaconmigo/auth: %w", err)
	}
	return nil
}

// ForgotPassword requests a password reset email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := s.backend.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("contaconmigo/auth: %w", err)
	}
	s.audit.LogContext(ctx, audit.Event{Action: audit.ActionPassword, Result: audit.ResultSuccess, Email: email, Details: "reset requested"})
	return nil
}

// ResetPassword sets a new password using the recovery access token from
// the reset email.
func (s *Service) ResetPassword(ctx context.Context, accessToken, newPassword string) error {
	if accessToken == "" {
		return errors.New("contaconmigo/auth: recovery token cannot be empty")
	}
	if err := CheckPassword(newPassword); err != nil {
		return err
	}
	if err := s.backend.ResetPassword(ctx, accessToken, newPassword); err != nil {
		s.audit.LogContext(ctx, audit.Event{Action: audit.ActionPassword, Result: audit.ResultFailure, Error: err.Error()})
		return fmt.Errorf("contaconmigo/auth: %w", err)
	}
	s.audit.LogContext(ctx, audit.Event{Action: audit.ActionPassword, Result: audit.ResultSuccess, Details: "password changed"})
	return nil
}

// Health reports whether the backend answers.
func (s *Service) Health(ctx context.Context) error {
	if err := s.backend.Health(ctx); err != nil {
		return fmt.Errorf("contaconmigo/auth: %w", err)
	}
	return nil
}
