package presenter

import (
	"fmt"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
)

// Mode selects the stepping granularity of Next/Previous.
type Mode int

const (
	// ModePart steps through every content part of a slide.
	ModePart Mode = iota
	// ModeSlide steps whole slides.
	ModeSlide
)

func (m Mode) String() string {
	switch m {
	case ModePart:
		return "part"
	case ModeSlide:
		return "slide"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "part" or "slide".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "part":
		return ModePart, nil
	case "slide":
		return ModeSlide, nil
	}
	return ModePart, fmt.Errorf("unknown mode %q", s)
}

// Config holds the operator's stepping preferences.
type Config struct {
	AutoAdvanceScheduleItem bool `json:"autoAdvanceScheduleItem"`
}

// ChangeKind tells listeners which broadcastable part of the state moved.
type ChangeKind int

const (
	ChangeSchedule ChangeKind = iota
	// ChangeItem means the loaded item changed; the selection changed with it.
	ChangeItem
	ChangeSelection
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSchedule:
		return "schedule"
	case ChangeItem:
		return "scheduleItem"
	case ChangeSelection:
		return "selection"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Listener is called synchronously after a state change.
type Listener func(ChangeKind)

// StateProvider supplies the initial schedule and config of one engine.
type StateProvider interface {
	InitialSchedule() []content.ScheduleItem
	InitialConfig() Config
}

// Persister receives the schedule after every mutation and the config after
// every change. Errors are logged by the engine and otherwise ignored.
type Persister interface {
	SaveSchedule(items []content.ScheduleItem) error
	SaveConfig(cfg Config) error
}

// State is a detached copy of the engine state.
type State struct {
	Schedule                []content.ScheduleItem
	Item                    *content.ScheduleItem
	Selection               content.Selection
	Override                *content.OverrideSlide
	Mode                    Mode
	Config                  Config
	LatestScheduleItemIndex int
}

// StaticState is a StateProvider over fixed values.
type StaticState struct {
	Schedule []content.ScheduleItem
	Config   Config
}

func (s StaticState) InitialSchedule() []content.ScheduleItem { return s.Schedule }
func (s StaticState) InitialConfig() Config                   { return s.Config }
