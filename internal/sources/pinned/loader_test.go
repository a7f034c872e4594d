package pinned

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFeedsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pinned-feeds.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write feeds file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFeedsFile(t, `
feeds:
  - label: "Design inspiration"
    identifier: "@design.example.com"
  - identifier: "news.example.com"
    default: true
  - label: "no identifier, skipped"
    identifier: ""
`)
	loader := NewLoader(path)

	feeds, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("got %d feeds, want 2", len(feeds))
	}
	if feeds[0].Identifier != "design.example.com" {
		t.Errorf("identifier = %q, want the @ prefix stripped", feeds[0].Identifier)
	}
	if feeds[1].Label != "news.example.com" {
		t.Errorf("label = %q, want fallback to identifier", feeds[1].Label)
	}
	if got := loader.DefaultIdentifier(); got != "news.example.com" {
		t.Errorf("DefaultIdentifier() = %q, want the flagged entry", got)
	}
}

func TestDefaultIdentifierFallsBackToFirst(t *testing.T) {
	path := writeFeedsFile(t, `
feeds:
  - identifier: "first.example.com"
  - identifier: "second.example.com"
`)
	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := loader.DefaultIdentifier(); got != "first.example.com" {
		t.Errorf("DefaultIdentifier() = %q, want the first entry", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := loader.Load(); err == nil {
		t.Fatal("Load() error = nil for a missing file")
	}
	if got := loader.DefaultIdentifier(); got != "" {
		t.Errorf("DefaultIdentifier() = %q, want empty before any load", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFeedsFile(t, "feeds: [broken")
	loader := NewLoader(path)
	if _, err := loader.Load(); err == nil {
		t.Fatal("Load() error = nil for invalid yaml")
	}
}

func TestFeedsReturnsACopy(t *testing.T) {
	path := writeFeedsFile(t, `
feeds:
  - identifier: "a.example.com"
`)
	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	feeds := loader.Feeds()
	feeds[0].Identifier = "mutated"
	if loader.Feeds()[0].Identifier != "a.example.com" {
		t.Error("Feeds() exposed internal state")
	}
}
