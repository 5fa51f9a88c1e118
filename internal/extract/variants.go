package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/vicentereig/notegrab/internal/types"
)

var errNullState = errors.New("state is null")

// tagPattern matches inline topic annotations in feed content: #{tagName=X}.
var tagPattern = regexp.MustCompile(`#\{tagName=(.*?)\}`)

type feedEntry struct {
	ID      json.RawMessage `json:"id"`
	Content string          `json:"content"`
	Video   *struct {
		VecVideoURL []struct {
			PlayURL string `json:"playUrl"`
		} `json:"vecVideoUrl"`
	} `json:"video"`
}

type noteEntry struct {
	NoteID json.RawMessage `json:"noteId"`
	ID     json.RawMessage `json:"id"`
	Title  string          `json:"title"`
	Desc   string          `json:"desc"`
	Video  *struct {
		Media *struct {
			VideoID json.RawMessage `json:"videoId"`
			Stream  *struct {
				H264 []struct {
					MasterURL string `json:"masterUrl"`
				} `json:"h264"`
			} `json:"stream"`
		} `json:"media"`
	} `json:"video"`
	ImageList []struct {
		TraceID string `json:"traceId"`
	} `json:"imageList"`
}

// mediaSource is one recognised shape of the page state. Exactly one of
// feed or note is set, according to variant.
type mediaSource struct {
	variant types.Variant
	feed    *feedEntry
	note    *noteEntry
}

// detectSources probes the decoded state for every known shape, in order:
// a "feeds" list first, then a "note.note" object. A key that is present
// but shaped differently is skipped rather than failing the whole page.
func detectSources(top map[string]json.RawMessage) []mediaSource {
	var sources []mediaSource

	if raw, ok := top["feeds"]; ok {
		var feeds []feedEntry
		if err := json.Unmarshal(raw, &feeds); err == nil && len(feeds) > 0 {
			sources = append(sources, mediaSource{variant: types.VariantFeedList, feed: &feeds[0]})
		}
	}

	if raw, ok := top["note"]; ok {
		var wrapper struct {
			Note *noteEntry `json:"note"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Note != nil {
			sources = append(sources, mediaSource{variant: types.VariantSingleNote, note: wrapper.Note})
		}
	}

	return sources
}

func (s mediaSource) toItem(imageHost string) (types.MediaItem, bool) {
	switch s.variant {
	case types.VariantFeedList:
		return s.feed.toItem()
	case types.VariantSingleNote:
		return s.note.toItem(imageHost)
	}
	return types.MediaItem{}, false
}

func (f *feedEntry) toItem() (types.MediaItem, bool) {
	if f.Video == nil || len(f.Video.VecVideoURL) == 0 || f.Video.VecVideoURL[0].PlayURL == "" {
		return types.MediaItem{}, false
	}
	id := rawString(f.ID)
	stem := types.FileStem(id)
	if stem == "" {
		return types.MediaItem{}, false
	}
	return types.MediaItem{
		ID:      id,
		Title:   StripTags(f.Content),
		Kind:    types.KindVideo,
		Variant: types.VariantFeedList,
		Assets: []types.AssetRef{{
			URL:               f.Video.VecVideoURL[0].PlayURL,
			SuggestedFilename: stem + ".mp4",
		}},
	}, true
}

func (n *noteEntry) toItem(imageHost string) (types.MediaItem, bool) {
	title := types.SanitizeTitle(n.Title)
	if title == "" {
		title = types.SanitizeTitle(n.Desc)
	}
	noteID := rawString(n.NoteID)
	if noteID == "" {
		noteID = rawString(n.ID)
	}

	if url := n.videoURL(); url != "" {
		id := rawString(n.Video.Media.VideoID)
		if types.FileStem(id) == "" {
			id = noteID
		}
		if stem := types.FileStem(id); stem != "" {
			return types.MediaItem{
				ID:      id,
				Title:   title,
				Kind:    types.KindVideo,
				Variant: types.VariantSingleNote,
				Assets:  []types.AssetRef{{URL: url, SuggestedFilename: stem + ".mp4"}},
			}, true
		}
	}

	var assets []types.AssetRef
	firstTrace := ""
	for _, img := range n.ImageList {
		stem := types.FileStem(img.TraceID)
		if stem == "" {
			continue
		}
		if firstTrace == "" {
			firstTrace = img.TraceID
		}
		assets = append(assets, types.AssetRef{
			URL:               imageHost + img.TraceID,
			SuggestedFilename: stem + ".jpg",
		})
	}
	if len(assets) == 0 {
		return types.MediaItem{}, false
	}
	if noteID == "" {
		noteID = firstTrace
	}
	return types.MediaItem{
		ID:      noteID,
		Title:   title,
		Kind:    types.KindImage,
		Variant: types.VariantSingleNote,
		Assets:  assets,
	}, true
}

func (n *noteEntry) videoURL() string {
	if n.Video == nil || n.Video.Media == nil || n.Video.Media.Stream == nil {
		return ""
	}
	if len(n.Video.Media.Stream.H264) == 0 {
		return ""
	}
	return n.Video.Media.Stream.H264[0].MasterURL
}

// StripTags replaces every #{tagName=X} annotation with X.
func StripTags(content string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(content, "$1"))
}

// rawString renders a JSON string or number as text; anything else is "".
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
