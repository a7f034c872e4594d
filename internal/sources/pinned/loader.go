// Package pinned loads the optional pinned-feeds YAML file: a curated
// list of public bookmark feeds surfaced as defaults on the browse API.
package pinned

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the pinned feeds file, and
// keeps the last good result for concurrent readers.
type Loader struct {
	filePath string

	mu    sync.RWMutex
	feeds []Feed
}

// NewLoader creates a new pinned feeds loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the pinned feeds file, replacing the held list.
func (l *Loader) Load() ([]Feed, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pinned feeds file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pinned feeds yaml: %w", err)
	}

	feeds := make([]Feed, 0, len(file.Feeds))
	for _, f := range file.Feeds {
		f.Identifier = strings.TrimPrefix(strings.TrimSpace(f.Identifier), "@")
		if f.Identifier == "" {
			continue
		}
		if f.Label == "" {
			f.Label = f.Identifier
		}
		feeds = append(feeds, f)
	}

	l.mu.Lock()
	l.feeds = feeds
	l.mu.Unlock()
	return feeds, nil
}

// Feeds returns the last successfully loaded list.
func (l *Loader) Feeds() []Feed {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Feed, len(l.feeds))
	copy(out, l.feeds)
	return out
}

// DefaultIdentifier returns the identifier marked default, falling back
// to the first entry. "" when no feeds are pinned.
func (l *Loader) DefaultIdentifier() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, f := range l.feeds {
		if f.Default {
			return f.Identifier
		}
	}
	if len(l.feeds) > 0 {
		return l.feeds[0].Identifier
	}
	return ""
}
