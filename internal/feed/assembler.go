// Package feed turns a user's public bookmark collection into a list
// of fully hydrated posts, ready for filtering and rendering.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/xrpc"
)

var (
	// ErrNoBookmarks means the resolved repository has no records in
	// the bookmark collection.
	ErrNoBookmarks = errors.New("no bookmarks found for this user")

	// ErrAlreadyLoading means an assembly for this assembler is still
	// in progress. Callers should wait for it rather than stack loads.
	ErrAlreadyLoading = errors.New("a feed load is already in progress")
)

const (
	feedPageSize = 50
	// Chunk size matches the post lookup endpoint's per-call URI limit.
	postChunkSize = 25
	chunkDelay    = 500 * time.Millisecond
	maxFeedPages  = 20
)

// DIDCache caches identifier to DID resolutions so repeated loads of
// the same feed skip the profile lookup.
type DIDCache interface {
	CacheDID(ctx context.Context, identifier, did string) error
	GetCachedDID(ctx context.Context, identifier string) (string, error)
}

// Sink receives incremental assembly progress. Every method is called
// from the loading goroutine, in order.
type Sink interface {
	// Progress reports how many bookmark records have been hydrated out
	// of the total so far discovered.
	Progress(hydrated, total int)
	// Posts delivers one newly hydrated chunk, already deduplicated.
	Posts(posts []domain.AssembledPost)
}

// Result is the outcome of one complete assembly.
type Result struct {
	DID         string
	Posts       []domain.AssembledPost
	RecordCount int
	Dropped     int // records whose posts no longer resolve
	LoadedAt    time.Time
}

// Assembler builds feeds page by page over the public endpoints. One
// assembly runs at a time per assembler.
type Assembler struct {
	client     *xrpc.Client
	cache      DIDCache
	collection string
	logger     logger.Logger
	loading    atomic.Bool
	// sleep is swappable in tests to skip the inter-chunk delay.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAssembler creates an assembler over the given client. cache may
// be nil, in which case every load resolves the identifier remotely.
func NewAssembler(client *xrpc.Client, cache DIDCache, collection string, log logger.Logger) *Assembler {
	return &Assembler{
		client:     client,
		cache:      cache,
		collection: collection,
		logger:     log,
		sleep:      sleepCtx,
	}
}

// Load assembles the public bookmark feed for the given identifier
// (handle, DID, or profile URL fragment). Records are fetched in
// cursor order and hydrated in fixed-size chunks with a short pause
// between chunks to stay polite to the public endpoint. A chunk that
// fails to hydrate is logged and skipped; the rest of the feed still
// loads. sink may be nil.
func (a *Assembler) Load(ctx context.Context, identifier string, sink Sink) (*Result, error) {
	if !a.loading.CompareAndSwap(false, true) {
		return nil, ErrAlreadyLoading
	}
	defer a.loading.Store(false)

	started := time.Now()
	did, err := a.resolveDID(ctx, identifier)
	if err != nil {
		return nil, err
	}

	records, err := a.fetchRecords(ctx, did)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBookmarks, identifier)
	}

	posts, dropped, err := a.hydrate(ctx, records, sink)
	if err != nil {
		return nil, err
	}

	a.logger.Info("feed assembled",
		logger.String("did", did),
		logger.Int("records", len(records)),
		logger.Int("posts", len(posts)),
		logger.Int("dropped", dropped),
		logger.Duration("took", time.Since(started)))

	return &Result{
		DID:         did,
		Posts:       posts,
		RecordCount: len(records),
		Dropped:     dropped,
		LoadedAt:    time.Now(),
	}, nil
}

// ResolveDID turns an identifier into a DID so callers can address
// the feed cache before deciding whether a full load is needed.
func (a *Assembler) ResolveDID(ctx context.Context, identifier string) (string, error) {
	return a.resolveDID(ctx, identifier)
}

// resolveDID: cache, then public profile lookup. Raw input passes
// through when it already looks like a DID or when the lookup fails.
func (a *Assembler) resolveDID(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(strings.TrimPrefix(identifier, "@"))
	if identifier == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNoBookmarks)
	}
	if strings.HasPrefix(identifier, "did:") {
		return identifier, nil
	}

	if a.cache != nil {
		if did, err := a.cache.GetCachedDID(ctx, identifier); err == nil && did != "" {
			return did, nil
		}
	}

	profile, err := a.client.PublicGetProfile(ctx, identifier)
	if err != nil {
		// The list endpoint accepts handles directly and rejects invalid
		// ids itself, so a failed lookup falls back to the raw input.
		a.logger.Warn("profile lookup failed, using identifier as repo",
			logger.String("identifier", identifier),
			logger.Error(err))
		return identifier, nil
	}
	if a.cache != nil {
		if cerr := a.cache.CacheDID(ctx, identifier, profile.DID); cerr != nil {
			a.logger.Debug("did cache write failed", logger.Error(cerr))
		}
	}
	return profile.DID, nil
}

func (a *Assembler) fetchRecords(ctx context.Context, did string) ([]domain.BookmarkRecord, error) {
	var records []domain.BookmarkRecord
	cursor := ""
	for page := 1; ; page++ {
		if page > maxFeedPages {
			a.logger.Warn("feed pagination cap reached",
				logger.Int("records", len(records)))
			break
		}
		resp, err := a.client.ListRecords(ctx, did, a.collection, feedPageSize, cursor, true)
		if err != nil {
			return nil, fmt.Errorf("failed to list public bookmarks: %w", err)
		}
		records = append(records, resp.Records...)
		cursor = resp.Cursor
		if cursor == "" {
			break
		}
	}
	return records, nil
}

// hydrate resolves bookmark records to posts chunk by chunk. The first
// occurrence of a duplicated subject URI wins; later records for the
// same post are silently collapsed into it.
func (a *Assembler) hydrate(ctx context.Context, records []domain.BookmarkRecord, sink Sink) ([]domain.AssembledPost, int, error) {
	type meta struct {
		category  string
		createdAt time.Time
	}
	order := make([]string, 0, len(records))
	metaByURI := make(map[string]meta, len(records))
	for _, rec := range records {
		// Bookmarks can point at arbitrary records; only posts hydrate.
		if !rec.IsPostSubject() {
			continue
		}
		uri := rec.Value.SubjectURI()
		if _, seen := metaByURI[uri]; seen {
			continue
		}
		order = append(order, uri)
		metaByURI[uri] = meta{
			category:  rec.Value.CategoryOrDefault(),
			createdAt: rec.Value.CreatedAt,
		}
	}

	var (
		assembled []domain.AssembledPost
		dropped   int
	)
	for start := 0; start < len(order); start += postChunkSize {
		if start > 0 {
			if err := a.sleep(ctx, chunkDelay); err != nil {
				return nil, 0, err
			}
		}
		end := start + postChunkSize
		if end > len(order) {
			end = len(order)
		}
		chunk := order[start:end]

		resp, err := a.client.PublicGetPosts(ctx, chunk)
		if err != nil {
			dropped += len(chunk)
			a.logger.Warn("post chunk failed, skipping",
				logger.Int("offset", start),
				logger.Int("size", len(chunk)),
				logger.Error(err))
			continue
		}

		byURI := make(map[string]domain.Post, len(resp.Posts))
		for _, p := range resp.Posts {
			if p.Valid() {
				byURI[p.URI] = p
			}
		}

		var batch []domain.AssembledPost
		for _, uri := range chunk {
			post, ok := byURI[uri]
			if !ok {
				dropped++
				continue
			}
			m := metaByURI[uri]
			batch = append(batch, domain.AssembledPost{
				Post: post,
				Meta: &domain.BookmarkMeta{Category: m.category, CreatedAt: m.createdAt},
			})
		}
		assembled = append(assembled, batch...)

		if sink != nil {
			if len(batch) > 0 {
				sink.Posts(batch)
			}
			sink.Progress(end, len(order))
		}
	}
	return assembled, dropped, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
