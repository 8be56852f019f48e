package printdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/printdesk/store"
)

// fakeBackend accepts a set of access tokens and serves the refresh endpoint.
type fakeBackend struct {
	t   testing.TB
	srv *httptest.Server

	mu       sync.Mutex
	valid    map[string]bool
	attempts map[string][]string
	ids      map[string][]string
	refreshs []string

	refreshCalls atomic.Int32
	// refreshStatus != 0 makes the exchange fail with that status.
	refreshStatus  int
	refreshAccess  string
	refreshRotated string
	refreshDelay   time.Duration
	refreshRevoked bool
	// refreshHangup drops the connection instead of answering.
	refreshHangup bool
	// refreshBody, when set, is served with 200 in place of the token pair.
	refreshBody string
	// refreshGate, when set, holds the exchange until closed.
	refreshGate    chan struct{}
	refreshStarted chan struct{}

	// barrier holds 401 responses until that many have been requested, so
	// every caller observes its 401 before any refresh can finish.
	barrier  int
	arrived  int
	released chan struct{}
}

func newFakeBackend(t testing.TB) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:              t,
		valid:          map[string]bool{},
		attempts:       map[string][]string{},
		ids:            map[string][]string{},
		refreshAccess:  "T2",
		refreshStarted: make(chan struct{}, 64),
		released:       make(chan struct{}),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) accept(tokens ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tok := range tokens {
		b.valid[tok] = true
	}
}

func (b *fakeBackend) attemptsFor(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.attempts[path]...)
}

func (b *fakeBackend) requestIDsFor(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ids[path]...)
}

func (b *fakeBackend) refreshBodies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.refreshs...)
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == defaultRefreshPath {
		b.serveRefresh(w, r)
		return
	}

	auth := r.Header.Get("Authorization")
	b.mu.Lock()
	b.attempts[r.URL.Path] = append(b.attempts[r.URL.Path], auth)
	b.ids[r.URL.Path] = append(b.ids[r.URL.Path], r.Header.Get("X-Request-ID"))
	ok := b.valid[strings.TrimPrefix(auth, "Bearer ")]
	b.mu.Unlock()

	switch {
	case r.URL.Path == "/redirect":
		http.Redirect(w, r, "/api/orders/", http.StatusFound)
		return
	case r.URL.Path == "/boom":
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"code":"internal","message":"boom"}}`)
		return
	}

	if !ok {
		b.waitBarrier()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Given token not valid for any token type","code":"token_not_valid"}`)
		return
	}

	switch r.URL.Path {
	case "/missing":
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Not found."}`)
	case "/large":
		n, _ := strconv.Atoi(r.URL.Query().Get("n"))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(bytes.Repeat([]byte{'x'}, n))
	case "/echo":
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path, "method": r.Method})
	}
}

func (b *fakeBackend) waitBarrier() {
	b.mu.Lock()
	if b.barrier <= 0 {
		b.mu.Unlock()
		return
	}
	b.arrived++
	if b.arrived == b.barrier {
		close(b.released)
	}
	released := b.released
	b.mu.Unlock()

	select {
	case <-released:
	case <-time.After(2 * time.Second):
	}
}

func (b *fakeBackend) serveRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	b.refreshStarted <- struct{}{}

	var in refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	b.refreshs = append(b.refreshs, in.Refresh)
	b.mu.Unlock()

	if b.refreshGate != nil {
		<-b.refreshGate
	}
	if b.refreshDelay > 0 {
		time.Sleep(b.refreshDelay)
	}

	if b.refreshHangup {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			b.t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
		return
	}
	if b.refreshBody != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, b.refreshBody)
		return
	}
	if b.refreshStatus != 0 {
		w.WriteHeader(b.refreshStatus)
		_, _ = io.WriteString(w, `{"detail":"Token is invalid or expired","code":"token_not_valid"}`)
		return
	}

	if !b.refreshRevoked {
		b.accept(b.refreshAccess)
	}
	out := refreshResponse{Access: b.refreshAccess, Refresh: b.refreshRotated}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type testClientOptions struct {
	cfg       func(*Config)
	sink      EventSink
	onExpired func(SessionEvent)
	kv        store.KV
	now       func() time.Time
}

func newTestClient(t *testing.T, b *fakeBackend, opts testClientOptions) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = b.srv.URL
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Refresh.WaitTimeout = 5 * time.Second
	if opts.cfg != nil {
		opts.cfg(&cfg)
	}

	builder := New().
		WithConfig(cfg).
		WithTransport(b.srv.Client().Transport).
		WithStore(opts.kv).
		WithEventSink(opts.sink).
		OnSessionExpired(opts.onExpired)
	if opts.now != nil {
		builder.withClock(opts.now)
	}

	c, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func mustSetTokens(t *testing.T, c *Client, access, refresh string) {
	t.Helper()
	if err := c.Credentials().SetTokens(t.Context(), Tokens{Access: access, Refresh: refresh}); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (s *recordingSink) Emit(_ context.Context, ev SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) ofType(typ string) []SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SessionEvent
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
