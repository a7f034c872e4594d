package domain

import "time"

// Author is the subset of a post author's profile the feed needs.
type Author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// PostRecord is the authored content of a post.
type PostRecord struct {
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Embed     *Embed    `json:"embed,omitempty"`
}

// Post is the hydrated post payload returned by the feed lookup
// endpoint. The client performs no schema validation beyond what these
// fields capture; unknown embed payloads are carried through opaquely.
type Post struct {
	URI         string     `json:"uri"`
	CID         string     `json:"cid,omitempty"`
	Author      Author     `json:"author"`
	Record      PostRecord `json:"record"`
	Embed       *Embed     `json:"embed,omitempty"`
	ReplyCount  int        `json:"replyCount"`
	RepostCount int        `json:"repostCount"`
	LikeCount   int        `json:"likeCount"`
	IndexedAt   time.Time  `json:"indexedAt"`
}

// Valid reports whether the payload is complete enough to assemble.
func (p *Post) Valid() bool {
	return p != nil && p.URI != "" && p.Author.DID != ""
}

// SortTime returns the post's server-indexed time, falling back to the
// authored time. Missing timestamps sort as the zero time.
func (p *Post) SortTime() time.Time {
	if !p.IndexedAt.IsZero() {
		return p.IndexedAt
	}
	return p.Record.CreatedAt
}

// BookmarkMeta is the bookmark-side metadata carried alongside a post.
type BookmarkMeta struct {
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssembledPost pairs a hydrated post with the bookmark metadata that
// led to it. Meta is nil for posts reached only via quoting.
type AssembledPost struct {
	Post Post          `json:"post"`
	Meta *BookmarkMeta `json:"meta,omitempty"`
}

// SaveTime returns the bookmark creation time, or zero when the post
// was not reached through a bookmark.
func (a *AssembledPost) SaveTime() time.Time {
	if a.Meta == nil {
		return time.Time{}
	}
	return a.Meta.CreatedAt
}

// Category returns the bookmark category for filtering.
func (a *AssembledPost) Category() string {
	if a.Meta == nil || a.Meta.Category == "" {
		return DefaultCategory
	}
	return a.Meta.Category
}
