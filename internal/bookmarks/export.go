package bookmarks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skymark/skymark/internal/domain"
)

// ExportEntry is the stable shape of one exported bookmark.
type ExportEntry struct {
	URI       string    `json:"uri"`
	Subject   string    `json:"subject"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExportDocument wraps the full export with provenance metadata.
type ExportDocument struct {
	ExportedAt time.Time     `json:"exportedAt"`
	Repo       string        `json:"repo"`
	Count      int           `json:"count"`
	Bookmarks  []ExportEntry `json:"bookmarks"`
}

// Export serializes the records to an indented JSON document, newest
// first as listed.
func Export(repo string, records []domain.BookmarkRecord, now time.Time) ([]byte, error) {
	doc := ExportDocument{
		ExportedAt: now.UTC(),
		Repo:       repo,
		Count:      len(records),
		Bookmarks:  make([]ExportEntry, 0, len(records)),
	}
	for _, rec := range records {
		doc.Bookmarks = append(doc.Bookmarks, ExportEntry{
			URI:       rec.URI,
			Subject:   rec.Value.SubjectURI(),
			Category:  rec.Value.CategoryOrDefault(),
			CreatedAt: rec.Value.CreatedAt,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportFilename returns the dated download filename for an export.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("bookmarks-%s.json", now.UTC().Format("2006-01-02"))
}
