// Package bookmarks implements CRUD over the user's bookmark
// collection on their own repository, plus candidate validation and
// the duplicate-aware save flow.
package bookmarks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/xrpc"
)

var (
	// ErrValidationFailed means the candidate post URI does not resolve
	// to a fetchable post. Surfaced inline; never touches the session.
	ErrValidationFailed = errors.New("post not found or invalid URI")

	// ErrDuplicate means the repository already holds a record for the
	// subject post. A soft conflict: callers may retry with force.
	ErrDuplicate = errors.New("post already bookmarked")
)

const (
	listPageSize = 100
	// maxListPages guards against a misbehaving or looping cursor.
	// Hitting it keeps the partial result and logs instead of failing.
	maxListPages = 20
)

// Repository performs record operations scoped to one repo id and the
// bookmark collection.
type Repository struct {
	client     *xrpc.Client
	collection string
	logger     logger.Logger
	now        func() time.Time
}

// NewRepository creates a bookmark repository over the given client.
func NewRepository(client *xrpc.Client, collection string, log logger.Logger) *Repository {
	return &Repository{
		client:     client,
		collection: collection,
		logger:     log,
		now:        time.Now,
	}
}

// Collection returns the collection NSID this repository manages.
func (r *Repository) Collection() string {
	return r.collection
}

// Create stores a new bookmark record; the server assigns the record
// key. Structured conflict codes (and, as a fallback, the known
// conflict message shapes) map to ErrDuplicate.
func (r *Repository) Create(ctx context.Context, repo, subjectURI, category string) (*domain.BookmarkRecord, error) {
	if category == "" {
		category = domain.DefaultCategory
	}
	value := domain.BookmarkValue{
		Type:      r.collection,
		URI:       subjectURI,
		Category:  category,
		CreatedAt: r.now().UTC(),
	}

	raw, err := r.client.CreateRecord(ctx, repo, r.collection, value)
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, err
	}

	var created struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if uerr := json.Unmarshal(raw, &created); uerr != nil {
		return nil, fmt.Errorf("failed to decode created record: %w", uerr)
	}
	rec := &domain.BookmarkRecord{URI: created.URI, CID: created.CID, Value: value}
	r.logger.Info("bookmark created",
		logger.String("rkey", rec.Key()),
		logger.String("category", category))
	return rec, nil
}

// ListAll fetches the complete bookmark list, following the opaque
// cursor page by page. Pages are concatenated in cursor order; the
// pagination cap stops a runaway cursor without failing the call.
func (r *Repository) ListAll(ctx context.Context, repo string) ([]domain.BookmarkRecord, error) {
	var all []domain.BookmarkRecord
	cursor := ""
	for page := 1; ; page++ {
		if page > maxListPages {
			r.logger.Warn("pagination cap reached, keeping partial result",
				logger.Int("pages", maxListPages),
				logger.Int("records", len(all)))
			break
		}

		resp, err := r.client.ListRecords(ctx, repo, r.collection, listPageSize, cursor, false)
		if err != nil {
			return nil, fmt.Errorf("failed to list bookmarks (page %d): %w", page, err)
		}
		all = append(all, resp.Records...)
		cursor = resp.Cursor
		if cursor == "" {
			break
		}
	}
	r.logger.Info("fetched bookmark records", logger.Int("count", len(all)))
	return all, nil
}

// Replace fully overwrites one record by key. There is no partial
// update: the caller supplies every field, preserving the original
// creation time when editing only the category.
func (r *Repository) Replace(ctx context.Context, repo, rkey, subjectURI, category string, createdAt time.Time) error {
	if category == "" {
		category = domain.DefaultCategory
	}
	value := domain.BookmarkValue{
		Type:      r.collection,
		URI:       subjectURI,
		Category:  category,
		CreatedAt: createdAt,
	}
	if _, err := r.client.PutRecord(ctx, repo, r.collection, rkey, value); err != nil {
		return err
	}
	r.logger.Info("bookmark replaced", logger.String("rkey", rkey))
	return nil
}

// Delete removes one record by key. Not-found is treated as success so
// the operation is idempotent from the caller's perspective.
func (r *Repository) Delete(ctx context.Context, repo, rkey string) error {
	err := r.client.DeleteRecord(ctx, repo, r.collection, rkey)
	if err != nil {
		if xrpc.StatusOf(err) == 404 {
			r.logger.Debug("bookmark already gone", logger.String("rkey", rkey))
			return nil
		}
		return err
	}
	r.logger.Info("bookmark deleted", logger.String("rkey", rkey))
	return nil
}

// ValidatePostsExist asks the feed lookup which of the given URIs
// currently resolve. Empty input short-circuits without a network call.
func (r *Repository) ValidatePostsExist(ctx context.Context, uris []string) ([]domain.Post, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	resp, err := r.client.GetPosts(ctx, uris)
	if err != nil {
		return nil, err
	}
	return resp.Posts, nil
}

// ValidateCandidate confirms a single candidate subject URI resolves to
// a real post. Returns ErrValidationFailed when it does not.
func (r *Repository) ValidateCandidate(ctx context.Context, uri string) (*domain.Post, error) {
	posts, err := r.ValidatePostsExist(ctx, []string{uri})
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].URI == uri {
			return &posts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrValidationFailed, uri)
}

// FindBySubject returns the existing record bookmarking the given post,
// or nil. Duplicates are a soft warning, not a hard constraint.
func FindBySubject(records []domain.BookmarkRecord, subjectURI string) *domain.BookmarkRecord {
	for i := range records {
		if records[i].Value.SubjectURI() == subjectURI {
			return &records[i]
		}
	}
	return nil
}

// isConflict recognizes the repository's duplicate-record responses.
// The structured error code is authoritative; the message match covers
// older PDS versions that only report a constraint violation string.
func isConflict(err error) bool {
	var apiErr *xrpc.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "RecordAlreadyExists", "InvalidSwap":
		return true
	}
	msg := apiErr.Message
	return strings.Contains(msg, "Record already exists") ||
		strings.Contains(msg, "ConstraintViolation")
}
