package domain

import (
	"math/rand/v2"
	"sort"
	"strings"
)

// SortMode selects the ordering of the assembled feed.
type SortMode string

const (
	SortRandom     SortMode = "random"
	SortNewestPost SortMode = "newest_post"
	SortOldestPost SortMode = "oldest_post"
	SortNewestSave SortMode = "newest_save"
	SortOldestSave SortMode = "oldest_save"
)

// ParseSortMode maps a query-parameter value to a sort mode, defaulting
// to random for anything unrecognized.
func ParseSortMode(s string) SortMode {
	switch SortMode(s) {
	case SortNewestPost, SortOldestPost, SortNewestSave, SortOldestSave:
		return SortMode(s)
	default:
		return SortRandom
	}
}

// FilterState is the transient browse state. It is mirrored into URL
// query parameters for shareable links but never persisted.
type FilterState struct {
	SearchTerm string
	Categories map[string]bool
	Embeds     map[string]bool
	Sort       SortMode
}

// NewFilterState returns the default state: no filters, random order.
func NewFilterState() FilterState {
	return FilterState{
		Categories: make(map[string]bool),
		Embeds:     make(map[string]bool),
		Sort:       SortRandom,
	}
}

// Apply filters and orders the assembled post list. Pure: the input
// slice is never mutated. Empty filter sets mean no restriction.
func Apply(posts []AssembledPost, state FilterState) []AssembledPost {
	out := make([]AssembledPost, 0, len(posts))

	term := strings.ToLower(strings.TrimSpace(state.SearchTerm))
	for i := range posts {
		p := &posts[i]
		if term != "" && !matchesSearch(p, term) {
			continue
		}
		if len(state.Categories) > 0 && !state.Categories[p.Category()] {
			continue
		}
		if len(state.Embeds) > 0 && !state.Embeds[EmbedType(&p.Post)] {
			continue
		}
		out = append(out, *p)
	}

	sortPosts(out, state.Sort)
	return out
}

// matchesSearch reports whether any searchable field contains term.
// The embed payload is matched in its raw JSON form, the same surface a
// structured renderer would have displayed.
func matchesSearch(p *AssembledPost, term string) bool {
	if strings.Contains(strings.ToLower(p.Post.Record.Text), term) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Post.Author.Handle), term) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Post.Author.DisplayName), term) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Category()), term) {
		return true
	}
	if p.Post.Embed != nil && strings.Contains(strings.ToLower(string(p.Post.Embed.Raw)), term) {
		return true
	}
	return false
}

func sortPosts(posts []AssembledPost, mode SortMode) {
	switch mode {
	case SortNewestPost:
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].Post.SortTime().After(posts[j].Post.SortTime())
		})
	case SortOldestPost:
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].Post.SortTime().Before(posts[j].Post.SortTime())
		})
	case SortNewestSave:
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].SaveTime().After(posts[j].SaveTime())
		})
	case SortOldestSave:
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].SaveTime().Before(posts[j].SaveTime())
		})
	default:
		// Fisher-Yates on every invocation; not stable across calls.
		rand.Shuffle(len(posts), func(i, j int) {
			posts[i], posts[j] = posts[j], posts[i]
		})
	}
}

// FilterOptions are the selectable values derived from a loaded feed.
type FilterOptions struct {
	Categories []string `json:"categories"`
	EmbedTypes []string `json:"embedTypes"`
}

// ComputeFilterOptions recomputes the selectable categories and embed
// types from the complete accumulated list. Uncategorized sorts first,
// the rest alphabetically.
func ComputeFilterOptions(posts []AssembledPost) FilterOptions {
	catSet := make(map[string]bool)
	embedSet := make(map[string]bool)
	for i := range posts {
		catSet[posts[i].Category()] = true
		embedSet[EmbedType(&posts[i].Post)] = true
	}

	opts := FilterOptions{
		Categories: make([]string, 0, len(catSet)),
		EmbedTypes: make([]string, 0, len(embedSet)),
	}
	for c := range catSet {
		opts.Categories = append(opts.Categories, c)
	}
	for e := range embedSet {
		opts.EmbedTypes = append(opts.EmbedTypes, e)
	}
	sort.Slice(opts.Categories, func(i, j int) bool {
		a, b := opts.Categories[i], opts.Categories[j]
		if a == DefaultCategory {
			return true
		}
		if b == DefaultCategory {
			return false
		}
		return strings.ToLower(a) < strings.ToLower(b)
	})
	sort.Strings(opts.EmbedTypes)
	return opts
}
