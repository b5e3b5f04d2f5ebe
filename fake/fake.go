// Package fake provides an in-memory contaconmigo backend for testing.
//
// Server speaks the same JSON-over-HTTP protocol as the real backend, signs
// HS256 access tokens and keeps users, templates and entries in memory.
// Mount Handler() on an httptest.Server to exercise the client end to end.
package fake

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// DefaultTokenTTL is the lifetime of issued access tokens.
const DefaultTokenTTL = time.Hour

// Option configures the fake server.
type Option func(*Server)

// WithUser adds an account.
func WithUser(id, email, password string) Option {
	return func(s *Server) {
		s.users[email] = &account{id: id, email: email, password: password}
	}
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// WithSecret sets the HMAC key tokens are signed with.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithClock sets the time source for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

type account struct {
	id       string
	email    string
	password string
	metadata map[string]any
}

type injected struct {
	status int
	detail string
	times  int
}

// Server is an in-memory backend.
type Server struct {
	mu        sync.RWMutex
	users     map[string]*account // email → account
	templates map[string]*contaconmigo.Template
	order     []string
	entries   map[string][]*contaconmigo.Entry // templateID → entries
	revoked   map[string]bool
	failures  map[string]*injected // "METHOD path" → injected failure
	calls     map[string]int

	secret []byte
	ttl    time.Duration
	now    func() time.Time

	engine *gin.Engine
}

// New creates a fake backend.
func New(opts ...Option) *Server {
	s := &Server{
		users:     make(map[string]*account),
		templates: make(map[string]*contaconmigo.Template),
		entries:   make(map[string][]*contaconmigo.Entry),
		revoked:   make(map[string]bool),
		failures:  make(map[string]*injected),
		calls:     make(map[string]int),
		secret:    []byte("contaconmigo-fake-secret"),
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the backend API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// IssueToken signs an access token for userID expiring after ttl. A
// negative ttl yields an already expired token.
func (s *Server) IssueToken(userID, email string, ttl time.Duration) string {
	now := s.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Email: email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("fake: sign token: %v", err))
	}
	return signed
}

// Revoke makes the server reject token with 401, as if it had been
// invalidated server-side.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// FailNext makes the next n requests to method and path answer status
// with {detail}. path is the route pattern, e.g. "/templates/:id".
func (s *Server) FailNext(method, path string, status int, detail string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &injected{status: status, detail: detail, times: n}
}

// Calls returns how many requests reached method and path (route pattern).
func (s *Server) Calls(method, path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method+" "+path]
}

// TemplateCount returns the number of stored templates.
func (s *Server) TemplateCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}
