package bookmarks

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	atURIPattern   = regexp.MustCompile(`^at://[^/]+/[^/]+/[^/]+$`)
	webURLPattern  = regexp.MustCompile(`^https?://bsky\.app/profile/([^/]+)/post/([^/?#]+)`)
	postCollection = "app.bsky.feed.post"
)

// HandleResolver resolves a handle or DID to a DID. *xrpc.Client
// satisfies it through ResolveHandle.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
}

// CanonicalURI normalizes user input into an at:// post URI. Accepted
// forms are an at:// URI (passed through) and a bsky.app post link,
// whose handle segment is resolved to a DID over the public endpoint.
func CanonicalURI(ctx context.Context, resolver HandleResolver, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty input", ErrValidationFailed)
	}

	if strings.HasPrefix(input, "at://") {
		if !atURIPattern.MatchString(input) {
			return "", fmt.Errorf("%w: malformed at-uri %q", ErrValidationFailed, input)
		}
		return input, nil
	}

	m := webURLPattern.FindStringSubmatch(input)
	if m == nil {
		return "", fmt.Errorf("%w: unrecognized post link %q", ErrValidationFailed, input)
	}
	actor, rkey := m[1], m[2]

	did := actor
	if !strings.HasPrefix(actor, "did:") {
		resolved, err := resolver.ResolveHandle(ctx, actor)
		if err != nil {
			return "", fmt.Errorf("failed to resolve handle %q: %w", actor, err)
		}
		did = resolved
	}
	return fmt.Sprintf("at://%s/%s/%s", did, postCollection, rkey), nil
}
