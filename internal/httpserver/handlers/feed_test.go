package handlers

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/skymark/skymark/internal/auth"
	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/sources/pinned"
)

type memStore struct {
	sess *domain.Session
}

func (s *memStore) SaveSession(ctx context.Context, session *domain.Session) error {
	s.sess = session
	return nil
}

func (s *memStore) LoadSession(ctx context.Context) (*domain.Session, error) {
	return s.sess, nil
}

func (s *memStore) ClearSession(ctx context.Context) error {
	s.sess = nil
	return nil
}

func pinnedLoader(t *testing.T, yaml string) *pinned.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write feeds file: %v", err)
	}
	l := pinned.NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("load feeds file: %v", err)
	}
	return l
}

func TestFeedIdentifierPrecedence(t *testing.T) {
	loader := pinnedLoader(t, `feeds:
  - label: Curated
    identifier: curated.test
    default: true
`)
	session := &domain.Session{
		DID: "did:plc:alice", Handle: "alice.test",
		AccessJWT: "a", RefreshJWT: "r",
	}

	tests := []struct {
		name   string
		target string
		sess   *domain.Session
		pinned *pinned.Loader
		want   string
	}{
		{"user parameter wins", "/api/feed?user=bob.test", session, loader, "bob.test"},
		{"session when no parameter", "/api/feed", session, loader, "alice.test"},
		{"pinned default when logged out", "/api/feed", nil, loader, "curated.test"},
		{"nothing to fall back on", "/api/feed", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deps.Deps{
				Auth:   auth.NewManager(nil, &memStore{sess: tt.sess}, logger.Nop()),
				Pinned: tt.pinned,
			}
			r := httptest.NewRequest("GET", tt.target, nil)
			if got := feedIdentifier(d, r); got != tt.want {
				t.Errorf("feedIdentifier() = %q, want %q", got, tt.want)
			}
		})
	}
}
