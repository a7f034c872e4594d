package domain

import (
	"strings"
	"time"
)

// DefaultCategory is assigned to bookmarks saved without a category.
const DefaultCategory = "Uncategorized"

// StrongRef is an at:// reference to a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid,omitempty"`
}

// BookmarkValue is the stored payload of one bookmark record.
// Older records carry the subject post URI directly in "uri"; newer ones
// wrap it in a "subject" strong ref. SubjectURI handles both.
type BookmarkValue struct {
	Type      string     `json:"$type,omitempty"`
	URI       string     `json:"uri,omitempty"`
	Subject   *StrongRef `json:"subject,omitempty"`
	Category  string     `json:"category,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// SubjectURI returns the at:// URI of the bookmarked post.
func (v *BookmarkValue) SubjectURI() string {
	if v == nil {
		return ""
	}
	if v.Subject != nil && v.Subject.URI != "" {
		return v.Subject.URI
	}
	return v.URI
}

// CategoryOrDefault returns the category, defaulting uncategorized saves.
func (v *BookmarkValue) CategoryOrDefault() string {
	if v == nil || v.Category == "" {
		return DefaultCategory
	}
	return v.Category
}

// BookmarkRecord is one record as returned by the repository service.
// URI addresses the record itself (not the bookmarked post).
type BookmarkRecord struct {
	URI   string        `json:"uri"`
	CID   string        `json:"cid,omitempty"`
	Value BookmarkValue `json:"value"`
}

// Key returns the server-assigned record key, the last path segment of
// the record URI. Immutable after creation.
func (r *BookmarkRecord) Key() string {
	if i := strings.LastIndexByte(r.URI, '/'); i >= 0 {
		return r.URI[i+1:]
	}
	return r.URI
}

// IsPostSubject reports whether the record points at a feed post.
// Records bookmarking anything else are skipped by the feed assembler.
func (r *BookmarkRecord) IsPostSubject() bool {
	uri := r.Value.SubjectURI()
	return strings.HasPrefix(uri, "at://") && strings.Contains(uri, "/app.bsky.feed.post/")
}

// CategoryGroup is the derived per-category view of the bookmark list.
// Recomputed from the full list on every change, never stored.
type CategoryGroup struct {
	Records         []BookmarkRecord `json:"records"`
	Count           int              `json:"count"`
	LatestTimestamp time.Time        `json:"latestTimestamp"`
}

// GroupByCategory groups records by category. Records without a subject
// URI or creation time are skipped, matching the rendering layer's
// expectations.
func GroupByCategory(records []BookmarkRecord) map[string]CategoryGroup {
	groups := make(map[string]CategoryGroup)
	for _, rec := range records {
		if rec.Value.SubjectURI() == "" || rec.Value.CreatedAt.IsZero() {
			continue
		}
		cat := rec.Value.CategoryOrDefault()
		g := groups[cat]
		g.Records = append(g.Records, rec)
		g.Count++
		if rec.Value.CreatedAt.After(g.LatestTimestamp) {
			g.LatestTimestamp = rec.Value.CreatedAt
		}
		groups[cat] = g
	}
	return groups
}
