// Package credential provides CredentialStore implementations: in-memory,
// a device-local JSON file and Redis.
package credential

import (
	"context"
	"sync"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	tokens  contaconmigo.Tokens
	profile *contaconmigo.UserProfile
}

// compile-time check
var _ contaconmigo.CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken, nil
}

func (s *MemoryStore) RefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.RefreshToken, nil
}

func (s *MemoryStore) Profile(ctx context.Context) (*contaconmigo.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

func (s *MemoryStore) SaveSession(ctx context.Context, tokens contaconmigo.Tokens, profile contaconmigo.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	s.profile = &profile
	return nil
}

func (s *MemoryStore) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = contaconmigo.Tokens{}
	s.profile = nil
	return nil
}
