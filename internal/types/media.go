// Package types provides shared data structures used across packages.
// Both the extractor (which produces media items) and the downloader and
// batch orchestrator (which consume them) import types, so none of them
// has to import another.
package types

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Kind is the kind of content a note page carries.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Dir returns the directory under the download root that holds assets of this kind.
func (k Kind) Dir() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "images"
	default:
		return string(k)
	}
}

// Variant identifies which embedded-state shape an item was extracted from.
type Variant string

const (
	VariantFeedList   Variant = "feed_list"
	VariantSingleNote Variant = "single_note"
)

// AssetRef is one downloadable URL of a media item.
type AssetRef struct {
	URL               string `json:"url"`
	SuggestedFilename string `json:"suggested_filename"`
}

// MediaItem is the canonical result of extracting a note page.
// Assets is never empty for an item returned without error.
type MediaItem struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Assets  []AssetRef `json:"assets"`
	Kind    Kind       `json:"kind"`
	Variant Variant    `json:"variant"`
}

// Dir returns the path segment used for the item's folder: the sanitized
// title, or the item ID when nothing of the title survives sanitizing.
func (m MediaItem) Dir() string {
	if dir := SanitizeTitle(m.Title); dir != "" {
		return dir
	}
	return SanitizeTitle(m.ID)
}

// SanitizeTitle keeps CJK ideographs (U+4E00..U+9FA5), ASCII letters,
// digits and underscore, and drops everything else. Full-width ASCII is
// folded to its narrow form first so "ＡＢＣ１" survives as "ABC1", after
// NFC composition so decomposed input filters the same as composed input.
// SanitizeTitle(SanitizeTitle(s)) == SanitizeTitle(s).
func SanitizeTitle(title string) string {
	title = width.Narrow.String(norm.NFC.String(title))
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if keepTitleRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FileStem reduces an identifier taken from page data to a filename stem
// that is a single path segment: ASCII letters, digits, '-' and '_'.
func FileStem(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keepTitleRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	case r >= 0x4e00 && r <= 0x9fa5:
		return true
	}
	return false
}
