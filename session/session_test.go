package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/audit"
	"github.com/contaconmigo/contaconmigo-go/credential"
	"github.com/contaconmigo/contaconmigo-go/metrics"
)

func mkToken(exp time.Time) string {
	b, _ := json.Marshal(map[string]any{"sub": "user-1", "exp": exp.Unix()})
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(b) + ".sig"
}

// countingStore wraps a MemoryStore and counts ClearSession calls.
type countingStore struct {
	*credential.MemoryStore
	clears  atomic.Int32
	readErr error
	// clearDelay widens the race window between concurrent terminations.
	clearDelay time.Duration
}

func (c *countingStore) AccessToken(ctx context.Context) (string, error) {
	if c.readErr != nil {
		return "", c.readErr
	}
	return c.MemoryStore.AccessToken(ctx)
}

func (c *countingStore) ClearSession(ctx context.Context) error {
	c.clears.Add(1)
	time.Sleep(c.clearDelay)
	return c.MemoryStore.ClearSession(ctx)
}

func newStore(t *testing.T, access string) *countingStore {
	t.Helper()
	s := &countingStore{MemoryStore: credential.NewMemoryStore()}
	if access != "" {
		err := s.SaveSession(context.Background(),
			contaconmigo.Tokens{AccessToken: access, RefreshToken: "r"},
			contaconmigo.UserProfile{ID: "user-1", Email: "ana@example.com"})
		if err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}
	return s
}

type notifications struct {
	mu      sync.Mutex
	reasons []contaconmigo.AuthReason
}

func (n *notifications) fn(_ context.Context, reason contaconmigo.AuthReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *notifications) get() []contaconmigo.AuthReason {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]contaconmigo.AuthReason(nil), n.reasons...)
}

func TestRestore_ValidSession(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(time.Hour)))
	s := New(store)

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if !s.IsLoggedIn() {
		t.Error("expected logged in after restore")
	}
	if p := s.Profile(); p == nil || p.ID != "user-1" {
		t.Errorf("Profile = %+v, want user-1", p)
	}
}

func TestRestore_NoSession(t *testing.T) {
	n := &notifications{}
	s := New(newStore(t, ""), WithOnTerminate(n.fn))

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if s.IsLoggedIn() {
		t.Error("expected logged out")
	}
	if got := n.get(); len(got) != 0 {
		t.Errorf("expected no notification, got %v", got)
	}
}

func TestRestore_ExpiredSessionIsTerminated(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(-time.Minute)))
	n := &notifications{}
	s := New(store, WithOnTerminate(n.fn))

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if s.IsLoggedIn() {
		t.Error("expected logged out")
	}
	if tok, _ := store.AccessToken(context.Background()); tok != "" {
		t.Errorf("store still holds %q", tok)
	}
	if got := n.get(); len(got) != 1 || got[0] != contaconmigo.ReasonExpired {
		t.Errorf("notifications = %v, want [expired]", got)
	}
}

func TestLogin(t *testing.T) {
	store := newStore(t, "")
	s := New(store)
	ctx := context.Background()

	err := s.Login(ctx, contaconmigo.Tokens{AccessToken: "a.b.c"}, contaconmigo.UserProfile{ID: "u9", Email: "u9@example.com"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !s.IsLoggedIn() {
		t.Error("expected logged in")
	}
	if tok, _ := store.AccessToken(ctx); tok != "a.b.c" {
		t.Errorf("stored token = %q, want %q", tok, "a.b.c")
	}
	if p := s.Profile(); p.Email != "u9@example.com" {
		t.Errorf("Email = %q, want %q", p.Email, "u9@example.com")
	}
}

func TestLogin_EmptyToken(t *testing.T) {
	s := New(newStore(t, ""))
	if err := s.Login(context.Background(), contaconmigo.Tokens{}, contaconmigo.UserProfile{}); err == nil {
		t.Fatal("expected error for empty access token")
	}
	if s.IsLoggedIn() {
		t.Error("expected logged out")
	}
}

func TestLogout(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(time.Hour)))
	n := &notifications{}
	s := New(store, WithOnTerminate(n.fn))
	ctx := context.Background()
	_ = s.Restore(ctx)

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if s.IsLoggedIn() {
		t.Error("expected logged out")
	}
	if s.Profile() != nil {
		t.Error("expected nil profile")
	}
	if got := n.get(); len(got) != 1 || got[0] != contaconmigo.ReasonLogout {
		t.Errorf("notifications = %v, want [logout]", got)
	}
}

func TestTerminate_ClearsAndNotifies(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(time.Hour)))
	n := &notifications{}
	reg := prometheus.NewRegistry()
	s := New(store, WithOnTerminate(n.fn), WithMetrics(metrics.New(true, reg)))
	ctx := context.Background()
	_ = s.Restore(ctx)

	if err := s.Terminate(ctx, contaconmigo.ReasonUnauthorized); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	if s.IsLoggedIn() {
		t.Error("expected logged out")
	}
	if tok, _ := store.AccessToken(ctx); tok != "" {
		t.Errorf("store still holds %q", tok)
	}
	if got := n.get(); len(got) != 1 || got[0] != contaconmigo.ReasonUnauthorized {
		t.Errorf("notifications = %v, want [unauthorized]", got)
	}
	if got, err := testutil.GatherAndCount(reg, "contaconmigo_session_terminations_total"); err != nil || got != 1 {
		t.Errorf("terminations series = %d (%v), want 1", got, err)
	}
}

func TestTerminate_SecondCallIsNoop(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(time.Hour)))
	n := &notifications{}
	s := New(store, WithOnTerminate(n.fn))
	ctx := context.Background()
	_ = s.Restore(ctx)

	_ = s.Terminate(ctx, contaconmigo.ReasonUnauthorized)
	_ = s.Terminate(ctx, contaconmigo.ReasonUnauthorized)

	if got := store.clears.Load(); got != 1 {
		t.Errorf("clears = %d, want 1", got)
	}
	if got := n.get(); len(got) != 1 {
		t.Errorf("notifications = %d, want 1", len(got))
	}
}

func TestTerminate_ConcurrentCallsNotifyOnce(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(time.Hour)))
	store.clearDelay = 20 * time.Millisecond
	n := &notifications{}
	s := New(store, WithOnTerminate(n.fn))
	ctx := context.Background()
	_ = s.Restore(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Terminate(ctx, contaconmigo.ReasonUnauthorized)
		}()
	}
	wg.Wait()

	if got := store.clears.Load(); got != 1 {
		t.Errorf("clears = %d, want 1", got)
	}
	if got := n.get(); len(got) != 1 {
		t.Errorf("notifications = %d, want 1", len(got))
	}
}

func TestTerminate_StoredTokenWithoutRestore(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(time.Hour)))
	n := &notifications{}
	s := New(store, WithOnTerminate(n.fn))

	// The store holds a token even though Restore was never called.
	if err := s.Terminate(context.Background(), contaconmigo.ReasonUnauthorized); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	if got := store.clears.Load(); got != 1 {
		t.Errorf("clears = %d, want 1", got)
	}
	if got := len(n.get()); got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}
}

func TestCheckExpired(t *testing.T) {
	tests := []struct {
		name       string
		access     string
		wantEnded  bool
		wantReason []contaconmigo.AuthReason
	}{
		{"valid", mkToken(time.Now().Add(time.Hour)), false, nil},
		{"expired", mkToken(time.Now().Add(-time.Second)), true, []contaconmigo.AuthReason{contaconmigo.ReasonExpired}},
		{"absent", "", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &notifications{}
			s := New(newStore(t, tt.access), WithOnTerminate(n.fn))
			ctx := context.Background()
			_ = s.Restore(ctx)

			ended, err := s.CheckExpired(ctx)
			if err != nil {
				t.Fatalf("CheckExpired returned error: %v", err)
			}
			if ended != tt.wantEnded {
				t.Errorf("ended = %v, want %v", ended, tt.wantEnded)
			}
			got := n.get()
			if len(got) != len(tt.wantReason) {
				t.Fatalf("notifications = %v, want %v", got, tt.wantReason)
			}
			for i := range got {
				if got[i] != tt.wantReason[i] {
					t.Errorf("reason[%d] = %q, want %q", i, got[i], tt.wantReason[i])
				}
			}
		})
	}
}

func TestCheckExpired_StoreErrorMeansNoToken(t *testing.T) {
	store := newStore(t, mkToken(time.Now().Add(time.Hour)))
	store.readErr = errors.New("keychain locked")
	s := New(store)

	ended, err := s.CheckExpired(context.Background())
	if err != nil {
		t.Fatalf("CheckExpired returned error: %v", err)
	}
	if !ended {
		t.Error("expected unusable session when the store cannot be read")
	}
}

func TestAuditEvents(t *testing.T) {
	var mu sync.Mutex
	var actions []string
	al := audit.New(10, audit.WithHandler(func(e audit.Event) {
		mu.Lock()
		defer mu.Unlock()
		actions = append(actions, e.Action)
	}))

	store := newStore(t, "")
	s := New(store, WithAudit(al))
	ctx := context.Background()

	_ = s.Login(ctx, contaconmigo.Tokens{AccessToken: mkToken(time.Now().Add(time.Hour))}, contaconmigo.UserProfile{ID: "u1"})
	_ = s.Restore(ctx)
	_ = s.Terminate(ctx, contaconmigo.ReasonUnauthorized)
	_ = s.Logout(ctx)
	al.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{audit.ActionLogin, audit.ActionRestore, audit.ActionTerminated, audit.ActionLogout}
	if len(actions) != len(want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("actions[%d] = %q, want %q", i, actions[i], want[i])
		}
	}
}
