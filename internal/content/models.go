package content

import (
	"encoding/json"
	"fmt"
)

// ItemKind is the kind of a schedule item.
type ItemKind string

const (
	KindSong    ItemKind = "song"
	KindText    ItemKind = "text"
	KindComment ItemKind = "comment"
)

// Valid reports whether k is one of the known kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindSong, KindText, KindComment:
		return true
	}
	return false
}

// ScheduleItem is one unit of the presentation schedule.
// Index is recomputed on every schedule mutation; UniqueID is assigned once at
// insertion and is used as a stable drag/sort key.
type ScheduleItem struct {
	ID       string   `json:"id"`
	Index    int      `json:"index"`
	UniqueID int      `json:"uniqueId"`
	Title    string   `json:"title"`
	Kind     ItemKind `json:"type"`
	Slides   []Slide  `json:"slides"`
}

// Clone returns a deep copy of the item.
func (it *ScheduleItem) Clone() *ScheduleItem {
	if it == nil {
		return nil
	}
	out := *it
	if it.Slides != nil {
		out.Slides = make([]Slide, len(it.Slides))
		for i, s := range it.Slides {
			out.Slides[i] = s.Clone()
		}
	}
	return &out
}

// SlideAt returns the slide at i, or nil when out of range.
func (it *ScheduleItem) SlideAt(i int) *Slide {
	if it == nil || i < 0 || i >= len(it.Slides) {
		return nil
	}
	return &it.Slides[i]
}

// Slide is an ordered list of content parts.
type Slide struct {
	Contents []SlideContent `json:"contents"`
	IsEmpty  bool           `json:"isEmpty,omitempty"`
}

// PartCount is the number of content parts on the slide.
func (s Slide) PartCount() int {
	return len(s.Contents)
}

// Clone returns a copy of the slide with its own contents slice.
func (s Slide) Clone() Slide {
	out := Slide{IsEmpty: s.IsEmpty}
	if s.Contents != nil {
		out.Contents = make([]SlideContent, len(s.Contents))
		copy(out.Contents, s.Contents)
	}
	return out
}

// UnmarshalJSON decodes the tagged contents of a slide.
func (s *Slide) UnmarshalJSON(b []byte) error {
	var raw struct {
		Contents []json.RawMessage `json:"contents"`
		IsEmpty  bool              `json:"isEmpty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.IsEmpty = raw.IsEmpty
	s.Contents = nil
	if raw.Contents == nil {
		return nil
	}
	s.Contents = make([]SlideContent, 0, len(raw.Contents))
	for i, rc := range raw.Contents {
		c, err := DecodeContent(rc)
		if err != nil {
			return fmt.Errorf("content %d: %w", i, err)
		}
		s.Contents = append(s.Contents, c)
	}
	return nil
}

// Selection points at a position inside the schedule. Nil fields are unset.
type Selection struct {
	ScheduleItem *int `json:"scheduleItem,omitempty"`
	Slide        *int `json:"slide,omitempty"`
	Part         *int `json:"part,omitempty"`
}

// Equal reports whether both selections point at the same position.
func (s Selection) Equal(o Selection) bool {
	return eqIntPtr(s.ScheduleItem, o.ScheduleItem) &&
		eqIntPtr(s.Slide, o.Slide) &&
		eqIntPtr(s.Part, o.Part)
}

func eqIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Int returns a pointer to v, for building selections.
func Int(v int) *int {
	return &v
}

// OverrideKind names a transient slide that covers the current selection.
type OverrideKind string

const (
	OverrideBlank OverrideKind = "blank"
	OverrideLogo  OverrideKind = "logo"
)

// OverrideSlide supersedes the selected slide for display only.
type OverrideSlide struct {
	ID OverrideKind `json:"id"`
}

// BroadcastSession identifies a remote synchronization channel.
type BroadcastSession struct {
	ID     string `json:"id"`
	OrgID  string `json:"orgId"`
	Secret string `json:"secret"`
}
