package domain

import (
	"encoding/json"
	"strings"
)

// Embed type labels used for filtering. Derived, never stored.
const (
	EmbedTextOnly        = "Text Only"
	EmbedImage           = "Image"
	EmbedExternalLink    = "External Link"
	EmbedQuotePost       = "Quote Post"
	EmbedRecordWithMedia = "Record + Media"
	EmbedVideo           = "Video"
	EmbedBlockedNotFound = "Blocked/Not Found"
	EmbedOther           = "Other Embed"
)

// Embed is an opaque embed payload. Only the declared $type is
// interpreted; the raw body is kept for round-tripping and search.
type Embed struct {
	Type string
	Raw  json.RawMessage
}

func (e *Embed) UnmarshalJSON(data []byte) error {
	var header struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	e.Type = header.Type
	e.Raw = append(e.Raw[:0], data...)
	return nil
}

func (e *Embed) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return []byte("null"), nil
}

// EmbedType classifies a post by its embed payload's declared type.
// The view embed takes precedence over the authored record embed.
func EmbedType(p *Post) string {
	embed := p.Embed
	if embed == nil {
		embed = p.Record.Embed
	}
	if embed == nil || embed.Type == "" {
		return EmbedTextOnly
	}

	// "app.bsky.embed.images#view" -> "images"
	kind := embed.Type
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		kind = kind[i+1:]
	}
	kind = strings.TrimSuffix(kind, "#view")

	switch kind {
	case "images":
		return EmbedImage
	case "external":
		return EmbedExternalLink
	case "record":
		return EmbedQuotePost
	case "recordWithMedia":
		return EmbedRecordWithMedia
	case "video":
		return EmbedVideo
	default:
		if strings.Contains(kind, "Blocked") || strings.Contains(kind, "NotFound") {
			return EmbedBlockedNotFound
		}
		return EmbedOther
	}
}
