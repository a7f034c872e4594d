package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/logger"
)

type feedResponse struct {
	DID      string                 `json:"did"`
	Posts    []domain.AssembledPost `json:"posts"`
	Total    int                    `json:"total"`    // posts in the assembled feed
	Filtered int                    `json:"filtered"` // posts after filtering
	Dropped  int                    `json:"dropped"`  // bookmarks whose posts no longer resolve
	LoadedAt time.Time              `json:"loadedAt"`
	Options  domain.FilterOptions   `json:"options"`
}

// filterStateFromQuery builds a filter state from request parameters:
// q (search), sort, cat and embed (comma-separated allow lists).
func filterStateFromQuery(r *http.Request) domain.FilterState {
	q := r.URL.Query()
	state := domain.NewFilterState()
	state.SearchTerm = strings.TrimSpace(q.Get("q"))
	state.Sort = domain.ParseSortMode(q.Get("sort"))
	for _, cat := range splitParam(q.Get("cat")) {
		state.Categories[cat] = true
	}
	for _, embed := range splitParam(q.Get("embed")) {
		state.Embeds[embed] = true
	}
	return state
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// feedIdentifier picks the feed owner: the user query parameter, the
// logged-in account, or the default pinned feed.
func feedIdentifier(d deps.Deps, r *http.Request) string {
	if user := strings.TrimSpace(r.URL.Query().Get("user")); user != "" {
		return user
	}
	if sess, err := d.Auth.CurrentSession(r.Context()); err == nil && sess != nil {
		return sess.Handle
	}
	if d.Pinned != nil {
		return d.Pinned.DefaultIdentifier()
	}
	return ""
}

func Feed(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := feedIdentifier(d, r)
		if identifier == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user parameter is required"})
			return
		}

		ctx := r.Context()
		state := filterStateFromQuery(r)
		refresh := r.URL.Query().Get("refresh") == "true"

		did, err := d.Assembler.ResolveDID(ctx, identifier)
		if err != nil {
			writeError(w, err)
			return
		}

		result := d.FeedCache.Get(did)
		if result == nil || refresh {
			result, err = d.Assembler.Load(ctx, identifier, nil)
			if err != nil {
				writeError(w, err)
				return
			}
			d.FeedCache.Put(result)
		}

		filtered := domain.Apply(result.Posts, state)
		d.Logger.Debug("feed served",
			logger.String("did", did),
			logger.Int("total", len(result.Posts)),
			logger.Int("filtered", len(filtered)))

		writeJSON(w, http.StatusOK, feedResponse{
			DID:      result.DID,
			Posts:    filtered,
			Total:    len(result.Posts),
			Filtered: len(filtered),
			Dropped:  result.Dropped,
			LoadedAt: result.LoadedAt,
			Options:  domain.ComputeFilterOptions(result.Posts),
		})
	}
}

// FeedOptions returns the category and embed facets of an assembled
// feed without the posts. Loads the feed if not already cached.
func FeedOptions(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := feedIdentifier(d, r)
		if identifier == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user parameter is required"})
			return
		}

		ctx := r.Context()
		did, err := d.Assembler.ResolveDID(ctx, identifier)
		if err != nil {
			writeError(w, err)
			return
		}

		result := d.FeedCache.Get(did)
		if result == nil {
			result, err = d.Assembler.Load(ctx, identifier, nil)
			if err != nil {
				writeError(w, err)
				return
			}
			d.FeedCache.Put(result)
		}
		writeJSON(w, http.StatusOK, domain.ComputeFilterOptions(result.Posts))
	}
}

type pinnedFeedsResponse struct {
	Feeds   []feedEntry `json:"feeds"`
	Default string      `json:"default,omitempty"`
}

type feedEntry struct {
	Label      string `json:"label"`
	Identifier string `json:"identifier"`
}

// PinnedFeeds lists the operator-curated feeds from the pinned feeds
// file. Empty when the feature is disabled.
func PinnedFeeds(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := pinnedFeedsResponse{Feeds: []feedEntry{}}
		if d.Pinned != nil {
			for _, f := range d.Pinned.Feeds() {
				resp.Feeds = append(resp.Feeds, feedEntry{Label: f.Label, Identifier: f.Identifier})
			}
			resp.Default = d.Pinned.DefaultIdentifier()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ReloadPinnedFeeds asks the reloader to re-read the pinned feeds file
// ahead of its next scheduled tick.
func ReloadPinnedFeeds(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.PinnedReloadTrigger == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "pinned feeds are not configured"})
			return
		}
		select {
		case d.PinnedReloadTrigger <- struct{}{}:
		default: // a reload is already queued
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
	}
}
