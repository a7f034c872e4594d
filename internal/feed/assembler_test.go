package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/xrpc"
)

const testCollection = "user.bookmark.feed.public"

type memDIDCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *memDIDCache) CacheDID(ctx context.Context, identifier, did string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]string)
	}
	c.m[identifier] = did
	return nil
}

func (c *memDIDCache) GetCachedDID(ctx context.Context, identifier string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[identifier], nil
}

// fakeAppView serves getProfile, listRecords and getPosts for one
// repository of bookmark records.
type fakeAppView struct {
	did          string
	subjects     []string // subject post URIs, in record order
	missing      map[string]bool
	failChunkOf  string // a URI whose chunk's getPosts call fails
	profileFails bool   // getProfile answers 500
	profileCalls atomic.Int32
	postsCalls   atomic.Int32
}

func (f *fakeAppView) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, xrpc.EndpointGetProfile):
			f.profileCalls.Add(1)
			if f.profileFails {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"did": f.did, "handle": "alice.test",
			})

		case strings.HasSuffix(r.URL.Path, xrpc.EndpointListRecords):
			records := make([]map[string]any, 0, len(f.subjects))
			for i, sub := range f.subjects {
				records = append(records, map[string]any{
					"uri": fmt.Sprintf("at://%s/%s/rk%d", f.did, testCollection, i),
					"value": map[string]any{
						"subject":   map[string]string{"uri": sub},
						"category":  "Tech",
						"createdAt": "2025-06-01T12:00:00Z",
					},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"records": records})

		case strings.HasSuffix(r.URL.Path, xrpc.EndpointGetPosts):
			f.postsCalls.Add(1)
			uris := r.URL.Query()["uris"]
			if f.failChunkOf != "" {
				for _, u := range uris {
					if u == f.failChunkOf {
						w.WriteHeader(http.StatusBadGateway)
						return
					}
				}
			}
			posts := make([]map[string]any, 0, len(uris))
			for _, u := range uris {
				if f.missing[u] {
					continue
				}
				posts = append(posts, map[string]any{
					"uri":    u,
					"author": map[string]string{"did": "did:plc:author", "handle": "author.test"},
					"record": map[string]any{"text": "post " + u, "createdAt": "2025-06-01T10:00:00Z"},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"posts": posts})

		default:
			t.Errorf("unexpected endpoint %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestAssembler(t *testing.T, view *fakeAppView, cache DIDCache) *Assembler {
	t.Helper()
	srv := httptest.NewServer(view.handler(t))
	t.Cleanup(srv.Close)
	client := xrpc.New(xrpc.Options{BaseURL: srv.URL, PublicBaseURL: srv.URL}, logger.Nop())
	a := NewAssembler(client, cache, testCollection, logger.Nop())
	a.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return a
}

func subjectURIs(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%d", i))
	}
	return out
}

func TestLoadAssemblesFeed(t *testing.T) {
	view := &fakeAppView{did: "did:plc:alice", subjects: subjectURIs(60)}
	a := newTestAssembler(t, view, &memDIDCache{})

	result, err := a.Load(context.Background(), "@alice.test", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.DID != "did:plc:alice" {
		t.Errorf("DID = %q", result.DID)
	}
	if len(result.Posts) != 60 || result.RecordCount != 60 || result.Dropped != 0 {
		t.Errorf("result = posts:%d records:%d dropped:%d, want 60/60/0",
			len(result.Posts), result.RecordCount, result.Dropped)
	}
	// 60 unique URIs in chunks of 25 -> 3 lookups.
	if got := view.postsCalls.Load(); got != 3 {
		t.Errorf("getPosts calls = %d, want 3", got)
	}
	for _, p := range result.Posts {
		if p.Meta == nil || p.Meta.Category != "Tech" {
			t.Fatalf("post %s lost its bookmark metadata", p.Post.URI)
		}
	}
}

func TestLoadDeduplicatesSubjects(t *testing.T) {
	subs := subjectURIs(3)
	subs = append(subs, subs[0], subs[1]) // duplicates collapse to the first record
	view := &fakeAppView{did: "did:plc:alice", subjects: subs}
	a := newTestAssembler(t, view, nil)

	result, err := a.Load(context.Background(), "alice.test", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(result.Posts) != 3 {
		t.Errorf("posts = %d, want 3 after dedupe", len(result.Posts))
	}
	if result.RecordCount != 5 {
		t.Errorf("RecordCount = %d, want the raw record count 5", result.RecordCount)
	}
}

func TestLoadNoBookmarks(t *testing.T) {
	view := &fakeAppView{did: "did:plc:alice"}
	a := newTestAssembler(t, view, nil)

	_, err := a.Load(context.Background(), "alice.test", nil)
	if !errors.Is(err, ErrNoBookmarks) {
		t.Fatalf("Load() error = %v, want ErrNoBookmarks", err)
	}
}

func TestLoadSkipsFailedChunks(t *testing.T) {
	subs := subjectURIs(30)
	view := &fakeAppView{did: "did:plc:alice", subjects: subs, failChunkOf: subs[0]}
	a := newTestAssembler(t, view, nil)

	result, err := a.Load(context.Background(), "alice.test", nil)
	if err != nil {
		t.Fatalf("Load() error = %v, a failed chunk must not fail the load", err)
	}
	// First chunk of 25 is dropped, second chunk of 5 survives.
	if len(result.Posts) != 5 || result.Dropped != 25 {
		t.Errorf("posts:%d dropped:%d, want 5/25", len(result.Posts), result.Dropped)
	}
}

func TestLoadDropsUnresolvedPosts(t *testing.T) {
	subs := subjectURIs(4)
	view := &fakeAppView{
		did:      "did:plc:alice",
		subjects: subs,
		missing:  map[string]bool{subs[2]: true},
	}
	a := newTestAssembler(t, view, nil)

	result, err := a.Load(context.Background(), "alice.test", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(result.Posts) != 3 || result.Dropped != 1 {
		t.Errorf("posts:%d dropped:%d, want 3/1", len(result.Posts), result.Dropped)
	}
}

func TestLoadRejectsConcurrentLoads(t *testing.T) {
	view := &fakeAppView{did: "did:plc:alice", subjects: subjectURIs(1)}
	a := newTestAssembler(t, view, nil)

	a.loading.Store(true)
	_, err := a.Load(context.Background(), "alice.test", nil)
	if !errors.Is(err, ErrAlreadyLoading) {
		t.Fatalf("Load() error = %v, want ErrAlreadyLoading", err)
	}
	a.loading.Store(false)

	if _, err := a.Load(context.Background(), "alice.test", nil); err != nil {
		t.Fatalf("Load() after release error = %v", err)
	}
}

func TestLoadSkipsNonPostSubjects(t *testing.T) {
	subs := subjectURIs(2)
	subs = append(subs, "at://did:plc:a/app.bsky.graph.list/starter")
	view := &fakeAppView{did: "did:plc:alice", subjects: subs}
	a := newTestAssembler(t, view, nil)

	result, err := a.Load(context.Background(), "alice.test", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// The list bookmark never reaches getPosts and is not a drop:
	// dropped counts posts that should have resolved but did not.
	if len(result.Posts) != 2 || result.Dropped != 0 {
		t.Errorf("posts:%d dropped:%d, want 2/0", len(result.Posts), result.Dropped)
	}
	if result.RecordCount != 3 {
		t.Errorf("RecordCount = %d, want all 3 records", result.RecordCount)
	}
}

func TestLoadFallsBackToRawIdentifierWhenProfileFails(t *testing.T) {
	view := &fakeAppView{did: "did:plc:alice", subjects: subjectURIs(2), profileFails: true}
	a := newTestAssembler(t, view, nil)

	// The list endpoint accepts handles as repo ids, so a broken profile
	// lookup must not kill the load.
	result, err := a.Load(context.Background(), "alice.test", nil)
	if err != nil {
		t.Fatalf("Load() error = %v, want fallback to the raw identifier", err)
	}
	if result.DID != "alice.test" {
		t.Errorf("DID = %q, want the raw identifier", result.DID)
	}
	if len(result.Posts) != 2 {
		t.Errorf("posts = %d, want 2", len(result.Posts))
	}
}

func TestResolveDIDUsesCache(t *testing.T) {
	view := &fakeAppView{did: "did:plc:alice", subjects: subjectURIs(1)}
	cache := &memDIDCache{}
	a := newTestAssembler(t, view, cache)

	for i := 0; i < 3; i++ {
		if _, err := a.ResolveDID(context.Background(), "alice.test"); err != nil {
			t.Fatalf("ResolveDID() error = %v", err)
		}
	}
	if got := view.profileCalls.Load(); got != 1 {
		t.Errorf("profile lookups = %d, want 1 (rest served from cache)", got)
	}

	// Raw DIDs never touch the network.
	did, err := a.ResolveDID(context.Background(), "did:plc:someone")
	if err != nil || did != "did:plc:someone" {
		t.Errorf("ResolveDID(did) = (%q, %v)", did, err)
	}
}

type recordingSink struct {
	mu       sync.Mutex
	batches  int
	hydrated int
	total    int
}

func (s *recordingSink) Progress(hydrated, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated, s.total = hydrated, total
}

func (s *recordingSink) Posts(posts []domain.AssembledPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
}

func TestLoadReportsProgress(t *testing.T) {
	view := &fakeAppView{did: "did:plc:alice", subjects: subjectURIs(30)}
	a := newTestAssembler(t, view, nil)

	sink := &recordingSink{}
	if _, err := a.Load(context.Background(), "alice.test", sink); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sink.batches != 2 {
		t.Errorf("post batches = %d, want 2", sink.batches)
	}
	if sink.hydrated != 30 || sink.total != 30 {
		t.Errorf("final progress = %d/%d, want 30/30", sink.hydrated, sink.total)
	}
}
