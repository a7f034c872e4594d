package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skymark/skymark/internal/auth"
	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/xrpc"
)

type memStore struct {
	mu   sync.Mutex
	sess *domain.Session
}

func (s *memStore) SaveSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sess = &cp
	return nil
}

func (s *memStore) LoadSession(ctx context.Context) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, nil
	}
	cp := *s.sess
	return &cp, nil
}

func (s *memStore) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	return nil
}

func newRefresherUnderTest(t *testing.T, store *memStore, interval time.Duration) (*SessionRefresher, *atomic.Int32) {
	t.Helper()
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, xrpc.EndpointRefreshSession) {
			t.Errorf("unexpected endpoint %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		refreshes.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"did": "did:plc:alice", "handle": "alice.test",
			"accessJwt": "fresh-access", "refreshJwt": "fresh-refresh",
		})
	}))
	t.Cleanup(srv.Close)

	log := logger.Nop()
	client := xrpc.New(xrpc.Options{BaseURL: srv.URL, PublicBaseURL: srv.URL}, log)
	mgr := auth.NewManager(client, store, log)
	client.SetCredentials(mgr)
	return NewSessionRefresher(mgr, log, interval), &refreshes
}

func TestSessionRefresherRenewsTokens(t *testing.T) {
	store := &memStore{sess: &domain.Session{
		DID:        "did:plc:alice",
		Handle:     "alice.test",
		AccessJWT:  "stale-access",
		RefreshJWT: "stale-refresh",
		IssuedAt:   time.Now().Add(-time.Hour),
	}}
	sr, refreshes := newRefresherUnderTest(t, store, 10*time.Millisecond)

	sr.Start(context.Background())
	defer sr.Stop()

	deadline := time.After(2 * time.Second)
	for refreshes.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no refresh happened within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}

	sr.Stop()
	sess, _ := store.LoadSession(context.Background())
	if sess == nil || sess.AccessJWT != "fresh-access" {
		t.Errorf("stored session = %+v, want renewed tokens", sess)
	}
}

func TestSessionRefresherStopsItselfWhenLoggedOut(t *testing.T) {
	sr, refreshes := newRefresherUnderTest(t, &memStore{}, time.Hour)

	// Drive a tick directly: an empty store means the user logged out,
	// so the timer should shut down without touching the network.
	sr.Start(context.Background())
	sr.tick(context.Background())

	if got := refreshes.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0", got)
	}
	sr.mu.Lock()
	stopped := sr.stopCh == nil
	sr.mu.Unlock()
	if !stopped {
		t.Error("refresher still running after logged-out tick")
	}
}

func TestSessionRefresherStopIsIdempotent(t *testing.T) {
	sr, _ := newRefresherUnderTest(t, &memStore{}, time.Hour)

	sr.Stop() // never started
	sr.Start(context.Background())
	sr.Stop()
	sr.Stop()
}

func TestSessionRefresherRestartReplacesTimer(t *testing.T) {
	sr, _ := newRefresherUnderTest(t, &memStore{}, time.Hour)

	ctx := context.Background()
	sr.Start(ctx)
	first := sr.stopCh
	sr.Start(ctx)
	defer sr.Stop()

	select {
	case <-first:
	default:
		t.Error("previous timer was not stopped on restart")
	}
}
