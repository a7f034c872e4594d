package bookmarks

import (
	"context"
	"errors"
	"testing"
)

type fakeResolver struct {
	did   string
	err   error
	calls int
}

func (r *fakeResolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.did, nil
}

func TestCanonicalURI(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		resolver  fakeResolver
		want      string
		wantErr   error
		wantCalls int
	}{
		{
			name:  "at uri passes through",
			input: "at://did:plc:abc/app.bsky.feed.post/3k1",
			want:  "at://did:plc:abc/app.bsky.feed.post/3k1",
		},
		{
			name:    "malformed at uri",
			input:   "at://did:plc:abc/extra/segments/here/nope",
			wantErr: ErrValidationFailed,
		},
		{
			name:      "web link with handle resolves",
			input:     "https://bsky.app/profile/alice.test/post/3k1",
			resolver:  fakeResolver{did: "did:plc:alice"},
			want:      "at://did:plc:alice/app.bsky.feed.post/3k1",
			wantCalls: 1,
		},
		{
			name:  "web link with did skips resolution",
			input: "https://bsky.app/profile/did:plc:alice/post/3k1",
			want:  "at://did:plc:alice/app.bsky.feed.post/3k1",
		},
		{
			name:  "trailing query stripped",
			input: "https://bsky.app/profile/did:plc:alice/post/3k1?ref=share",
			want:  "at://did:plc:alice/app.bsky.feed.post/3k1",
		},
		{
			name:    "unrecognized link",
			input:   "https://example.com/not-a-post",
			wantErr: ErrValidationFailed,
		},
		{
			name:    "empty input",
			input:   "  ",
			wantErr: ErrValidationFailed,
		},
		{
			name:     "resolver failure propagates",
			input:    "https://bsky.app/profile/ghost.test/post/3k1",
			resolver: fakeResolver{err: errors.New("handle not found")},
			wantErr:  nil, // a wrapped resolver error, checked below
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURI(context.Background(), &tt.resolver, tt.input)

			if tt.resolver.err != nil {
				if err == nil {
					t.Fatal("CanonicalURI() error = nil, want resolver failure")
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CanonicalURI() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CanonicalURI() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanonicalURI() = %q, want %q", got, tt.want)
			}
			if tt.wantCalls > 0 && tt.resolver.calls != tt.wantCalls {
				t.Errorf("resolver calls = %d, want %d", tt.resolver.calls, tt.wantCalls)
			}
		})
	}
}
