package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skymark/skymark/internal/bookmarks"
	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/xrpc"
)

// requireSession loads the current session or writes a 401.
func requireSession(d deps.Deps, w http.ResponseWriter, r *http.Request) *domain.Session {
	sess, err := d.Auth.CurrentSession(r.Context())
	if err != nil {
		writeError(w, err)
		return nil
	}
	if sess == nil {
		writeError(w, xrpc.ErrNotAuthenticated)
		return nil
	}
	return sess
}

type bookmarkListResponse struct {
	Records []domain.BookmarkRecord         `json:"records"`
	Groups  map[string]domain.CategoryGroup `json:"groups"`
	Count   int                             `json:"count"`
}

func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := requireSession(d, w, r)
		if sess == nil {
			return
		}
		records, err := d.Repo.ListAll(r.Context(), sess.DID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bookmarkListResponse{
			Records: records,
			Groups:  domain.GroupByCategory(records),
			Count:   len(records),
		})
	}
}

type createBookmarkRequest struct {
	URL      string `json:"url"`      // at:// URI or bsky.app post link
	Category string `json:"category"` // empty defaults to Uncategorized
	Force    bool   `json:"force"`    // bypass the duplicate check
}

func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := requireSession(d, w, r)
		if sess == nil {
			return
		}
		var req createBookmarkRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		ctx := r.Context()
		uri, err := bookmarks.CanonicalURI(ctx, d.Client, req.URL)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := d.Repo.ValidateCandidate(ctx, uri); err != nil {
			writeError(w, err)
			return
		}

		if !req.Force {
			existing, lerr := d.Repo.ListAll(ctx, sess.DID)
			if lerr != nil {
				writeError(w, lerr)
				return
			}
			if dup := bookmarks.FindBySubject(existing, uri); dup != nil {
				writeError(w, fmt.Errorf("%w (in %q)", bookmarks.ErrDuplicate, dup.Value.CategoryOrDefault()))
				return
			}
		}

		rec, err := d.Repo.Create(ctx, sess.DID, uri, req.Category)
		if err != nil {
			writeError(w, err)
			return
		}
		d.FeedCache.Invalidate(sess.DID)
		writeJSON(w, http.StatusCreated, rec)
	}
}

type validateBookmarkRequest struct {
	URL string `json:"url"`
}

// ValidateBookmark canonicalizes a link and checks that the post still
// resolves, without creating anything. Lets clients verify before save.
func ValidateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateBookmarkRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		ctx := r.Context()
		uri, err := bookmarks.CanonicalURI(ctx, d.Client, req.URL)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := d.Repo.ValidateCandidate(ctx, uri); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"valid": true, "uri": uri})
	}
}

type updateBookmarkRequest struct {
	Category string `json:"category"`
}

// UpdateBookmark changes the category of one record, keeping the
// original subject and creation time.
func UpdateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := requireSession(d, w, r)
		if sess == nil {
			return
		}
		rkey := chi.URLParam(r, "rkey")
		var req updateBookmarkRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		ctx := r.Context()
		records, err := d.Repo.ListAll(ctx, sess.DID)
		if err != nil {
			writeError(w, err)
			return
		}
		var current *domain.BookmarkRecord
		for i := range records {
			if records[i].Key() == rkey {
				current = &records[i]
				break
			}
		}
		if current == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "bookmark not found"})
			return
		}

		err = d.Repo.Replace(ctx, sess.DID, rkey,
			current.Value.SubjectURI(), req.Category, current.Value.CreatedAt)
		if err != nil {
			writeError(w, err)
			return
		}
		d.FeedCache.Invalidate(sess.DID)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := requireSession(d, w, r)
		if sess == nil {
			return
		}
		rkey := chi.URLParam(r, "rkey")
		if err := d.Repo.Delete(r.Context(), sess.DID, rkey); err != nil {
			writeError(w, err)
			return
		}
		d.FeedCache.Invalidate(sess.DID)
		d.Logger.Info("bookmark removed", logger.String("rkey", rkey))
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func ExportBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := requireSession(d, w, r)
		if sess == nil {
			return
		}
		records, err := d.Repo.ListAll(r.Context(), sess.DID)
		if err != nil {
			writeError(w, err)
			return
		}
		now := d.Now()
		data, err := bookmarks.Export(sess.DID, records, now)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", bookmarks.ExportFilename(now)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
