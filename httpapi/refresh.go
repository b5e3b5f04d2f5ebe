package httpapi

import (
	"context"
	"log/slog"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// StoreRefresher is the default Refresher. The backend exposes no renewal
// endpoint, so it never produces a token: without a refresh token it returns
// immediately, and with one it logs that re-authentication is required.
// Every expired access token therefore ends the session.
type StoreRefresher struct {
	store  contaconmigo.CredentialStore
	logger *slog.Logger
}

// compile-time check
var _ contaconmigo.Refresher = (*StoreRefresher)(nil)

// NewStoreRefresher creates the default refresher over store.
func NewStoreRefresher(store contaconmigo.CredentialStore, logger *slog.Logger) *StoreRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRefresher{store: store, logger: logger}
}

// Refresh always returns an empty token and never calls the network.
func (r *StoreRefresher) Refresh(ctx context.Context) (string, error) {
	refreshToken, err := r.store.RefreshToken(ctx)
	if err != nil {
		r.logger.Warn("credential store read failed", "error", err)
		return "", nil
	}
	if refreshToken == "" {
		r.logger.Debug("no refresh token available")
		return "", nil
	}

	// TODO: exchange the refresh token once the identity backend exposes a
	// renewal endpoint; until then the user must log in again.
	r.logger.Info("refresh token present but renewal is not supported; re-authentication required")
	return "", nil
}
