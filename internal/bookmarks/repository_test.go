package bookmarks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/xrpc"
)

const testCollection = "user.bookmark.feed.public"

type staticCreds struct{}

func (staticCreds) AuthHeader(ctx context.Context) string    { return "Bearer test" }
func (staticCreds) RefreshSession(ctx context.Context) error { return nil }

func newTestRepo(t *testing.T, handler http.Handler) *Repository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := xrpc.New(xrpc.Options{BaseURL: srv.URL, PublicBaseURL: srv.URL}, logger.Nop())
	client.SetCredentials(staticCreds{})
	return NewRepository(client, testCollection, logger.Nop())
}

func recordPage(count int, prefix, cursor string) map[string]any {
	records := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, map[string]any{
			"uri": fmt.Sprintf("at://did:plc:alice/%s/%s%d", testCollection, prefix, i),
			"value": map[string]any{
				"subject":   map[string]string{"uri": fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%s%d", prefix, i)},
				"category":  "Tech",
				"createdAt": "2025-06-01T12:00:00Z",
			},
		})
	}
	page := map[string]any{"records": records}
	if cursor != "" {
		page["cursor"] = cursor
	}
	return page
}

func TestListAllFollowsCursor(t *testing.T) {
	var pages atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, xrpc.EndpointListRecords) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		pages.Add(1)
		switch r.URL.Query().Get("cursor") {
		case "":
			_ = json.NewEncoder(w).Encode(recordPage(100, "a", "page2"))
		case "page2":
			_ = json.NewEncoder(w).Encode(recordPage(40, "b", ""))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})

	repo := newTestRepo(t, handler)
	records, err := repo.ListAll(context.Background(), "did:plc:alice")
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(records) != 140 {
		t.Errorf("ListAll() = %d records, want 140", len(records))
	}
	if got := pages.Load(); got != 2 {
		t.Errorf("pages fetched = %d, want 2", got)
	}
}

func TestListAllStopsAtPageCap(t *testing.T) {
	// A cursor that never terminates must not loop forever.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(recordPage(100, "x", "again"))
	})

	repo := newTestRepo(t, handler)
	records, err := repo.ListAll(context.Background(), "did:plc:alice")
	if err != nil {
		t.Fatalf("ListAll() error = %v, want partial success", err)
	}
	if len(records) != maxListPages*100 {
		t.Errorf("ListAll() = %d records, want %d", len(records), maxListPages*100)
	}
}

func TestCreateMapsConflictToErrDuplicate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"structured code", `{"error":"RecordAlreadyExists","message":"nope"}`},
		{"message fallback", `{"error":"InvalidRequest","message":"ConstraintViolation: duplicate key"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(tt.body))
			})
			repo := newTestRepo(t, handler)

			_, err := repo.Create(context.Background(), "did:plc:alice",
				"at://did:plc:a/app.bsky.feed.post/1", "Tech")
			if !errors.Is(err, ErrDuplicate) {
				t.Errorf("Create() error = %v, want ErrDuplicate", err)
			}
		})
	}
}

func TestCreateDefaultsCategory(t *testing.T) {
	var gotCategory string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Record struct {
				Category string `json:"category"`
			} `json:"record"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotCategory = body.Record.Category
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uri": "at://did:plc:alice/" + testCollection + "/3k1",
			"cid": "bafy123",
		})
	})
	repo := newTestRepo(t, handler)

	rec, err := repo.Create(context.Background(), "did:plc:alice",
		"at://did:plc:a/app.bsky.feed.post/1", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if gotCategory != "Uncategorized" {
		t.Errorf("sent category %q, want Uncategorized", gotCategory)
	}
	if rec.Key() != "3k1" {
		t.Errorf("Key() = %q, want 3k1", rec.Key())
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"RecordNotFound","message":"no such record"}`))
	})
	repo := newTestRepo(t, handler)

	if err := repo.Delete(context.Background(), "did:plc:alice", "gone"); err != nil {
		t.Errorf("Delete() error = %v, want nil for a missing record", err)
	}
}

func TestValidatePostsExistShortCircuitsOnEmptyInput(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected for empty input")
	})
	repo := newTestRepo(t, handler)

	posts, err := repo.ValidatePostsExist(context.Background(), nil)
	if err != nil || posts != nil {
		t.Errorf("ValidatePostsExist(nil) = (%v, %v), want (nil, nil)", posts, err)
	}
}

func TestValidateCandidateRejectsUnresolvedPost(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"posts": []any{}})
	})
	repo := newTestRepo(t, handler)

	_, err := repo.ValidateCandidate(context.Background(), "at://did:plc:a/app.bsky.feed.post/missing")
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("ValidateCandidate() error = %v, want ErrValidationFailed", err)
	}
}
