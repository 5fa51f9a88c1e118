// Package extract recovers media descriptors from the application state a
// note page embeds in an inline script (window.__INITIAL_STATE__=...).
package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/vicentereig/notegrab/internal/config"
	xlog "github.com/vicentereig/notegrab/internal/log"
	"github.com/vicentereig/notegrab/internal/types"
)

// StateMarker prefixes the script that carries the page state.
const StateMarker = "window.__INITIAL_STATE__="

// Options configures an Extractor.
type Options struct {
	// ImageHost is prepended to each image trace id. Defaults to the public CDN.
	ImageHost string
	Logger    *zerolog.Logger
}

// Extractor turns page markup into a types.MediaItem.
type Extractor struct {
	imageHost string
	logger    zerolog.Logger
}

// New returns an Extractor.
func New(opts Options) *Extractor {
	host := opts.ImageHost
	if host == "" {
		host = config.DefaultImageHost
	}
	if !strings.HasSuffix(host, "/") {
		host += "/"
	}
	logger := xlog.WithComponent("extract")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Extractor{imageHost: host, logger: logger}
}

// Extract performs a single parse of markup. It fails with an
// *ExtractionError of kind MarkerNotFound, DecodeFailed or NoAssets.
func (e *Extractor) Extract(markup string) (types.MediaItem, error) {
	payload, err := findStatePayload(markup)
	if err != nil {
		return types.MediaItem{}, err
	}

	var top map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(normalizePayload(payload)))
	if err := dec.Decode(&top); err != nil {
		return types.MediaItem{}, &ExtractionError{Kind: DecodeFailed, Err: err}
	}
	if top == nil {
		return types.MediaItem{}, &ExtractionError{Kind: DecodeFailed, Err: errNullState}
	}

	for _, src := range detectSources(top) {
		item, ok := src.toItem(e.imageHost)
		if !ok {
			e.logger.Debug().Str(xlog.FieldVariant, string(src.variant)).Msg("variant present but carries no assets")
			continue
		}
		return item, nil
	}
	return types.MediaItem{}, &ExtractionError{Kind: NoAssets}
}

// findStatePayload returns the text after the marker's '=' in the first
// script whose body starts with the marker.
func findStatePayload(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", &ExtractionError{Kind: MarkerNotFound, Err: err}
	}

	var payload string
	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimLeft(s.Text(), " \t\r\n")
		if !strings.HasPrefix(text, StateMarker) {
			return true
		}
		payload = text[strings.IndexByte(text, '=')+1:]
		found = true
		return false
	})
	if !found {
		return "", &ExtractionError{Kind: MarkerNotFound}
	}
	return payload, nil
}

// normalizePayload turns the serialized state into JSON: bare undefined
// tokens become null and a trailing semicolon is dropped. String literals
// are left untouched.
func normalizePayload(payload string) string {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimSuffix(payload, ";")

	const token = "undefined"
	var b strings.Builder
	b.Grow(len(payload))

	inString, escaped := false, false
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == 'u' && strings.HasPrefix(payload[i:], token) && !isIdentByte(prevByte(payload, i)) && !isIdentByte(byteAt(payload, i+len(token))) {
			b.WriteString("null")
			i += len(token) - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func prevByte(s string, i int) byte {
	if i == 0 {
		return 0
	}
	return s[i-1]
}

func byteAt(s string, i int) byte {
	if i >= len(s) {
		return 0
	}
	return s[i]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
