package httpapi_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/credential"
	"github.com/contaconmigo/contaconmigo-go/httpapi"
	"github.com/contaconmigo/contaconmigo-go/metrics"
)

func mkToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"sub": sub, "exp": exp.Unix(), "iat": time.Now().Unix()})
	require.NoError(t, err)
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(b) + ".sig"
}

// recorder is a backend whose responses are scripted per call.
type recorder struct {
	mu      sync.Mutex
	calls   int
	auth    []string
	reqIDs  []string
	bodies  []string
	headers []http.Header
	respond func(call int, w http.ResponseWriter, r *http.Request)
	srv     *httptest.Server
}

func newRecorder(t *testing.T, respond func(call int, w http.ResponseWriter, r *http.Request)) *recorder {
	t.Helper()
	rec := &recorder{respond: respond}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls++
		call := rec.calls
		rec.auth = append(rec.auth, r.Header.Get("Authorization"))
		rec.reqIDs = append(rec.reqIDs, r.Header.Get(httpapi.HeaderRequestID))
		rec.bodies = append(rec.bodies, string(body))
		rec.headers = append(rec.headers, r.Header.Clone())
		rec.mu.Unlock()
		rec.respond(call, w, r)
	}))
	t.Cleanup(rec.srv.Close)
	return rec
}

func (r *recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fixedRefresher returns the same token every time and counts calls.
type fixedRefresher struct {
	token string
	err   error
	calls atomic.Int32
}

func (f *fixedRefresher) Refresh(ctx context.Context) (string, error) {
	f.calls.Add(1)
	return f.token, f.err
}

// countingTerminator records termination reasons.
type countingTerminator struct {
	mu      sync.Mutex
	reasons []contaconmigo.AuthReason
}

func (c *countingTerminator) Terminate(ctx context.Context, reason contaconmigo.AuthReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
	return nil
}

func (c *countingTerminator) Reasons() []contaconmigo.AuthReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]contaconmigo.AuthReason(nil), c.reasons...)
}

func storeWith(t *testing.T, access, refresh string) *credential.MemoryStore {
	t.Helper()
	s := credential.NewMemoryStore()
	if access != "" {
		require.NoError(t, s.SaveSession(context.Background(),
			contaconmigo.Tokens{AccessToken: access, RefreshToken: refresh},
			contaconmigo.UserProfile{ID: "user-1"}))
	}
	return s
}

func TestDispatch_NoToken(t *testing.T) {
	rec := newRecorder(t, func(int, http.ResponseWriter, *http.Request) {})
	term := &countingTerminator{}
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), credential.NewMemoryStore(), httpapi.WithTerminator(term))

	err := d.Dispatch(context.Background(), httpapi.Request{Method: http.MethodGet, Path: "/templates"}, nil)

	var af *contaconmigo.AuthFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, contaconmigo.ReasonNoToken, af.Reason)
	assert.Equal(t, 0, rec.Calls())
	assert.Equal(t, []contaconmigo.AuthReason{contaconmigo.ReasonNoToken}, term.Reasons())
}

func TestDispatch_ExpiredWithoutRefreshTokenMakesNoCall(t *testing.T) {
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	term := &countingTerminator{}
	expired := mkToken(t, "user-1", time.Now().Add(-time.Minute))
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, expired, ""), httpapi.WithTerminator(term))

	err := d.Dispatch(context.Background(), httpapi.Request{Method: http.MethodGet, Path: "/templates"}, nil)

	assert.Equal(t, contaconmigo.ReasonExpiredAndRefreshFailed, contaconmigo.AuthReasonOf(err))
	assert.Equal(t, 0, rec.Calls())
	assert.Equal(t, []contaconmigo.AuthReason{contaconmigo.ReasonExpiredAndRefreshFailed}, term.Reasons())
}

func TestDispatch_ExpiredWithRefreshTokenStillFails(t *testing.T) {
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	expired := mkToken(t, "user-1", time.Now().Add(-time.Minute))
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, expired, "refresh-1"))

	err := d.Dispatch(context.Background(), httpapi.Request{Path: "/templates"}, nil)

	assert.Equal(t, contaconmigo.ReasonExpiredAndRefreshFailed, contaconmigo.AuthReasonOf(err))
	assert.Equal(t, 0, rec.Calls())
}

func TestDispatch_Success(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"templates": []any{}})
	})
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, valid, ""))

	var out struct {
		Templates []any `json:"templates"`
	}
	require.NoError(t, d.Dispatch(context.Background(), httpapi.Request{Method: http.MethodGet, Path: "/templates"}, &out))

	assert.Equal(t, 1, rec.Calls())
	assert.Equal(t, "Bearer "+valid, rec.auth[0])
	assert.NotEmpty(t, rec.reqIDs[0])
	assert.NotNil(t, out.Templates)
}

func TestDispatch_401ThenRefreshThenSuccess(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	renewed := mkToken(t, "user-1", time.Now().Add(2*time.Hour))
	rec := newRecorder(t, func(call int, w http.ResponseWriter, r *http.Request) {
		if call == 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	ref := &fixedRefresher{token: renewed}
	term := &countingTerminator{}
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, valid, "refresh-1"),
		httpapi.WithRefresher(ref), httpapi.WithTerminator(term))

	var out map[string]bool
	err := d.Dispatch(context.Background(), httpapi.Request{
		Method: http.MethodPost,
		Path:   "/templates/t1/data",
		Body:   map[string]any{"values": map[string]any{"n": 1}},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ok": true}, out)
	assert.Equal(t, 2, rec.Calls())
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Equal(t, "Bearer "+valid, rec.auth[0])
	assert.Equal(t, "Bearer "+renewed, rec.auth[1])
	assert.Equal(t, rec.reqIDs[0], rec.reqIDs[1], "retry reuses the request id")
	assert.Equal(t, rec.bodies[0], rec.bodies[1], "retry resends the same body")
	assert.Empty(t, term.Reasons())
}

func TestDispatch_AlwaysUnauthorizedStopsAfterOneRetry(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "nope"})
	})
	ref := &fixedRefresher{token: mkToken(t, "user-1", time.Now().Add(time.Hour))}
	term := &countingTerminator{}
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, valid, "r"),
		httpapi.WithRefresher(ref), httpapi.WithTerminator(term))

	err := d.Dispatch(context.Background(), httpapi.Request{Path: "/templates"}, nil)

	assert.Equal(t, contaconmigo.ReasonUnauthorized, contaconmigo.AuthReasonOf(err))
	assert.Equal(t, 2, rec.Calls())
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Equal(t, []contaconmigo.AuthReason{contaconmigo.ReasonUnauthorized}, term.Reasons())

	var ae *contaconmigo.APIError
	require.ErrorAs(t, err, &ae, "the final 401 is wrapped")
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
}

func TestDispatch_401WithDefaultRefresherFailsAfterOneCall(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "revoked"})
	})
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, valid, "refresh-1"))

	err := d.Dispatch(context.Background(), httpapi.Request{Path: "/templates"}, nil)

	assert.Equal(t, contaconmigo.ReasonUnauthorized, contaconmigo.AuthReasonOf(err))
	assert.Equal(t, 1, rec.Calls())
}

func TestDispatch_PreflightRefreshThen401DoesNotRefreshAgain(t *testing.T) {
	expired := mkToken(t, "user-1", time.Now().Add(-time.Minute))
	renewed := mkToken(t, "user-1", time.Now().Add(time.Hour))
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "nope"})
	})
	ref := &fixedRefresher{token: renewed}
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, expired, "r"), httpapi.WithRefresher(ref))

	err := d.Dispatch(context.Background(), httpapi.Request{Path: "/templates"}, nil)

	assert.Equal(t, contaconmigo.ReasonUnauthorized, contaconmigo.AuthReasonOf(err))
	assert.Equal(t, 1, rec.Calls())
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Equal(t, "Bearer "+renewed, rec.auth[0])
}

func TestDispatch_RefreshErrorIsTreatedAsNoToken(t *testing.T) {
	expired := mkToken(t, "user-1", time.Now().Add(-time.Minute))
	rec := newRecorder(t, func(int, http.ResponseWriter, *http.Request) {})
	ref := &fixedRefresher{err: errors.New("identity backend down")}
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, expired, "r"), httpapi.WithRefresher(ref))

	err := d.Dispatch(context.Background(), httpapi.Request{Path: "/templates"}, nil)
	assert.Equal(t, contaconmigo.ReasonExpiredAndRefreshFailed, contaconmigo.AuthReasonOf(err))
	assert.Equal(t, 0, rec.Calls())
}

func TestDispatch_ServerErrorIsNotRetried(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "server error"})
	})
	ref := &fixedRefresher{token: "unused"}
	term := &countingTerminator{}
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL), storeWith(t, valid, "r"),
		httpapi.WithRefresher(ref), httpapi.WithTerminator(term))

	err := d.Dispatch(context.Background(), httpapi.Request{Path: "/templates"}, nil)

	var ae *contaconmigo.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 500, ae.Status)
	assert.Equal(t, "server error", ae.Detail)
	assert.False(t, contaconmigo.IsAuthFailure(err))
	assert.Equal(t, 1, rec.Calls())
	assert.Equal(t, int32(0), ref.calls.Load())
	assert.Empty(t, term.Reasons())
}

func TestDispatch_ConnectionError(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := httpapi.NewDispatcher(httpapi.NewCaller(url), storeWith(t, valid, ""))
	err := d.Dispatch(context.Background(), httpapi.Request{Path: "/templates"}, nil)

	assert.True(t, contaconmigo.IsConnectionError(err))
	assert.Equal(t, contaconmigo.StatusConnectionError, contaconmigo.StatusOf(err))
	assert.False(t, contaconmigo.IsAuthFailure(err))
}

func TestDispatch_HeadersMergedAuthorizationWins(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL, httpapi.WithUserAgent("contaconmigo-test")), storeWith(t, valid, ""))

	ctx := contaconmigo.WithRequestID(context.Background(), "req-42")
	err := d.Dispatch(ctx, httpapi.Request{
		Method: http.MethodDelete,
		Path:   "/templates/t1",
		Header: http.Header{"Authorization": {"Bearer forged"}, "X-Trace": {"abc"}},
	}, nil)

	require.NoError(t, err)
	h := rec.headers[0]
	assert.Equal(t, "Bearer "+valid, h.Get("Authorization"))
	assert.Equal(t, "abc", h.Get("X-Trace"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "contaconmigo-test", h.Get("User-Agent"))
	assert.Equal(t, "req-42", h.Get(httpapi.HeaderRequestID))

	// Non-canonical keys must not slip past the session token either.
	for i := 0; i < 40; i++ {
		err := d.Dispatch(ctx, httpapi.Request{
			Method: http.MethodDelete,
			Path:   "/templates/t1",
			Header: http.Header{"authorization": {"Bearer forged"}, "x-request-id": {"other"}},
		}, nil)
		require.NoError(t, err)
	}
	require.Len(t, rec.headers, 41)
	for i, h := range rec.headers[1:] {
		assert.Equal(t, []string{"Bearer " + valid}, h.Values("Authorization"), "call %d", i+1)
		assert.Equal(t, []string{"req-42"}, h.Values(httpapi.HeaderRequestID), "call %d", i+1)
	}
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	valid := mkToken(t, "user-1", time.Now().Add(time.Hour))
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	reg := prometheus.NewRegistry()
	m := metrics.New(true, reg)
	d := httpapi.NewDispatcher(httpapi.NewCaller(rec.srv.URL, httpapi.WithMetrics(m)), storeWith(t, valid, ""))

	require.NoError(t, d.Dispatch(context.Background(), httpapi.Request{Path: "/health"}, nil))

	n, err := testutil.GatherAndCount(reg, "contaconmigo_dispatch_total", "contaconmigo_http_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCaller_ErrorDetailFallbacks(t *testing.T) {
	rec := newRecorder(t, func(call int, w http.ResponseWriter, _ *http.Request) {
		switch call {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream unavailable"))
		case 2:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]string{{"msg": "field required"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := httpapi.NewCaller(rec.srv.URL + "/")

	var ae *contaconmigo.APIError

	err := c.Do(context.Background(), httpapi.Request{Path: "/a"}, nil)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 502, ae.Status)
	assert.Equal(t, "upstream unavailable", ae.Detail)

	err = c.Do(context.Background(), httpapi.Request{Path: "/b"}, nil)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 422, ae.Status)
	assert.JSONEq(t, `[{"msg":"field required"}]`, ae.Detail)

	err = c.Do(context.Background(), httpapi.Request{Path: "/c"}, nil)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Not Found", ae.Detail)
}

func TestCaller_RateLimiterHonoursContext(t *testing.T) {
	rec := newRecorder(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := httpapi.NewCaller(rec.srv.URL, httpapi.WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	require.NoError(t, c.Do(context.Background(), httpapi.Request{Path: "/health"}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Do(ctx, httpapi.Request{Path: "/health"}, nil)
	assert.True(t, contaconmigo.IsConnectionError(err))
	assert.Equal(t, 1, rec.Calls())
}

func TestStoreRefresher_NeverRenews(t *testing.T) {
	ctx := context.Background()

	tok, err := httpapi.NewStoreRefresher(credential.NewMemoryStore(), nil).Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	tok, err = httpapi.NewStoreRefresher(storeWith(t, "a.b.c", "refresh-1"), nil).Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}
