package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/token"
)

// ErrNoSession is returned by a TokenSource when the store holds no access
// token, or only an expired one.
var ErrNoSession = errors.New("credential: no valid session")

// storeTokenSource serves the stored access token as an oauth2 bearer token.
type storeTokenSource struct {
	ctx       context.Context
	store     contaconmigo.CredentialStore
	inspector *token.Inspector
	logger    *slog.Logger
}

// TokenSourceOption configures TokenSource.
type TokenSourceOption func(*storeTokenSource)

// WithTokenSourceLogger sets the logger. Defaults to slog.Default().
func WithTokenSourceLogger(l *slog.Logger) TokenSourceOption {
	return func(s *storeTokenSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// compile-time check
var _ oauth2.TokenSource = (*storeTokenSource)(nil)

// TokenSource adapts store to oauth2.TokenSource so that the session can
// authorize plain http.Clients built with oauth2.NewClient. It never
// renews: an absent or expired token yields ErrNoSession, and ending the
// session remains the caller's job. The refresh token is best effort: a
// store error reading it is logged and the token is served without one.
func TokenSource(ctx context.Context, store contaconmigo.CredentialStore, inspector *token.Inspector, opts ...TokenSourceOption) oauth2.TokenSource {
	if inspector == nil {
		inspector = token.NewInspector()
	}
	s := &storeTokenSource{ctx: ctx, store: store, inspector: inspector, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	access, err := s.store.AccessToken(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if access == "" {
		return nil, ErrNoSession
	}
	info := s.inspector.Info(access)
	if info.Expired {
		return nil, fmt.Errorf("%w: access token expired", ErrNoSession)
	}

	refresh, err := s.store.RefreshToken(s.ctx)
	if err != nil {
		s.logger.Warn("read refresh token", "error", err)
		refresh = ""
	}
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
		Expiry:       time.Now().Add(time.Duration(info.SecondsToExpiry) * time.Second),
	}, nil
}
