// Package sanitize turns untrusted schedule, item and selection payloads into
// the nearest valid value. Nothing in here returns an error or panics: a
// receiver must keep running whatever arrives over the network.
package sanitize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
)

const (
	MaxItems         = 500
	MaxSlides        = 300
	MaxContents      = 30
	MaxIDLen         = 128
	MaxTitleLen      = 300
	MaxTextLen       = 5000
	MaxURLLen        = 2048
	MaxSelectionIdx  = 10000
	minSelectionPart = -MaxSelectionIdx
)

// Schedule returns the valid items of raw. Anything that is not an array
// yields an empty schedule; malformed elements are skipped.
func Schedule(raw any) []content.ScheduleItem {
	arr, ok := decode(raw).([]any)
	if !ok {
		return []content.ScheduleItem{}
	}
	out := make([]content.ScheduleItem, 0, min(len(arr), MaxItems))
	for _, v := range arr {
		if len(out) == MaxItems {
			break
		}
		if it, ok := scheduleItem(v); ok {
			it.Index = len(out)
			out = append(out, it)
		}
	}
	return out
}

// ScheduleItem returns the item in raw, or nil when raw is not a valid item.
func ScheduleItem(raw any) *content.ScheduleItem {
	it, ok := scheduleItem(decode(raw))
	if !ok {
		return nil
	}
	return &it
}

// Selection keeps the well-formed indices of raw and drops the rest.
func Selection(raw any) content.Selection {
	obj, ok := decode(raw).(map[string]any)
	if !ok {
		return content.Selection{}
	}
	var sel content.Selection
	if v, ok := index(obj["scheduleItem"], 0); ok {
		sel.ScheduleItem = &v
	}
	if v, ok := index(obj["slide"], 0); ok {
		sel.Slide = &v
	}
	if v, ok := index(obj["part"], minSelectionPart); ok {
		sel.Part = &v
	}
	return sel
}

// decode unmarshals byte payloads; already-decoded values pass through.
func decode(raw any) any {
	var b []byte
	switch v := raw.(type) {
	case nil:
		return nil
	case json.RawMessage:
		b = v
	case []byte:
		b = v
	default:
		return normalize(v)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// normalize round-trips typed Go values (e.g. content.ScheduleItem) into the
// generic JSON shape the pickers below expect.
func normalize(v any) any {
	switch v.(type) {
	case map[string]any, []any, string, float64, bool:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func scheduleItem(v any) (content.ScheduleItem, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return content.ScheduleItem{}, false
	}
	kind := content.ItemKind(str(obj["type"], 16))
	if !kind.Valid() {
		return content.ScheduleItem{}, false
	}
	it := content.ScheduleItem{
		ID:     idString(obj["id"]),
		Title:  str(obj["title"], MaxTitleLen),
		Kind:   kind,
		Slides: []content.Slide{},
	}
	if n, ok := index(obj["index"], 0); ok {
		it.Index = n
	}
	if n, ok := integer(obj["uniqueId"]); ok && n > 0 {
		it.UniqueID = n
	}
	if slides, ok := obj["slides"].([]any); ok {
		for _, sv := range slides {
			if len(it.Slides) == MaxSlides {
				break
			}
			if s, ok := slide(sv); ok {
				it.Slides = append(it.Slides, s)
			}
		}
	}
	return it, true
}

func slide(v any) (content.Slide, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return content.Slide{}, false
	}
	s := content.Slide{}
	if b, ok := obj["isEmpty"].(bool); ok {
		s.IsEmpty = b
	}
	if contents, ok := obj["contents"].([]any); ok {
		for _, cv := range contents {
			if len(s.Contents) == MaxContents {
				break
			}
			if c, ok := slideContent(cv); ok {
				s.Contents = append(s.Contents, c)
			}
		}
	}
	return s, true
}

func slideContent(v any) (content.SlideContent, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	switch content.ContentType(str(obj["type"], 16)) {
	case content.ContentTitle:
		return content.TitleContent{
			Title:    str(obj["title"], MaxTitleLen),
			Subtitle: str(obj["subtitle"], MaxTitleLen),
		}, true
	case content.ContentText:
		return content.TextContent{Text: str(obj["text"], MaxTextLen)}, true
	case content.ContentImage:
		url := str(obj["url"], MaxURLLen)
		if url == "" {
			return nil, false
		}
		return content.ImageContent{URL: url, Alt: str(obj["alt"], MaxTitleLen)}, true
	}
	return nil, false
}

// str returns v when it is a string, cut to limit runes.
func str(v any, limit int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

// idString accepts string or integral ids.
func idString(v any) string {
	if n, ok := integer(v); ok {
		return strconv.Itoa(n)
	}
	return strings.TrimSpace(str(v, MaxIDLen))
}

func integer(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func index(v any, lowest int) (int, bool) {
	n, ok := integer(v)
	if !ok || n < lowest || n > MaxSelectionIdx {
		return 0, false
	}
	return n, true
}
