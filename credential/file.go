package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// fileRecord is the on-disk layout of a FileStore.
type fileRecord struct {
	Tokens  contaconmigo.Tokens       `json:"tokens"`
	Profile *contaconmigo.UserProfile `json:"profile,omitempty"`
}

// FileStore persists the session as a JSON file readable only by its owner.
// Writes go through a temporary file and a rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// compile-time check
var _ contaconmigo.CredentialStore = (*FileStore)(nil)

// NewFileStore creates a store backed by the file at path. The file is
// created on the first SaveSession.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (*fileRecord, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential/file: read: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("credential/file: decode: %w", err)
	}
	return &rec, nil
}

func (s *FileStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load()
	if err != nil {
		return "", err
	}
	return rec.Tokens.AccessToken, nil
}

func (s *FileStore) RefreshToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load()
	if err != nil {
		return "", err
	}
	return rec.Tokens.RefreshToken, nil
}

func (s *FileStore) Profile(ctx context.Context) (*contaconmigo.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load()
	if err != nil {
		return nil, err
	}
	return rec.Profile, nil
}

func (s *FileStore) SaveSession(ctx context.Context, tokens contaconmigo.Tokens, profile contaconmigo.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(fileRecord{Tokens: tokens, Profile: &profile}, "", "  ")
	if err != nil {
		return fmt.Errorf("credential/file: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credential/file: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("credential/file: create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credential/file: write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credential/file: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential/file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("credential/file: rename: %w", err)
	}
	return nil
}

func (s *FileStore) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credential/file: remove: %w", err)
	}
	return nil
}
