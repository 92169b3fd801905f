// Package presenter tracks the live position inside a presentation schedule.
//
// The Engine is not safe for concurrent use: it is driven by a single caller
// (the operator console or a receiver mirror) and every operation completes
// synchronously before listeners run.
package presenter

import (
	"log"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
)

// Engine is the navigation state machine.
type Engine struct {
	schedule []*content.ScheduleItem
	loaded   *content.ScheduleItem

	// itemIndex is the schedule position of loaded, nil for ad hoc items.
	itemIndex *int
	// latest is the last bound schedule position, -1 before anything was bound.
	latest int

	slide int
	part  int

	mode     Mode
	override *content.OverrideSlide
	config   Config

	nextUniqueID int

	persister Persister
	listeners []Listener
}

// Option configures an Engine.
type Option func(*Engine)

// WithInitialState seeds the engine from p.
func WithInitialState(p StateProvider) Option {
	return func(e *Engine) {
		if p == nil {
			return
		}
		e.config = p.InitialConfig()
		e.restore(p.InitialSchedule())
	}
}

// WithPersister mirrors schedule and config changes to p.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithMode sets the initial stepping mode.
func WithMode(m Mode) Option {
	return func(e *Engine) { e.mode = m }
}

// New creates an engine with an empty schedule unless an initial state is given.
func New(opts ...Option) *Engine {
	e := &Engine{
		latest:       -1,
		nextUniqueID: 1,
		mode:         ModePart,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnChange registers a listener.
func (e *Engine) OnChange(l Listener) {
	e.listeners = append(e.listeners, l)
}

func (e *Engine) notify(kind ChangeKind) {
	for _, l := range e.listeners {
		l(kind)
	}
}

// ---------- schedule mutations ----------

// ReplaceSchedule swaps the whole schedule. Items get fresh indices and
// uniqueIds. The loaded item stays on display but is no longer bound to a
// schedule position.
func (e *Engine) ReplaceSchedule(items []content.ScheduleItem) {
	e.schedule = make([]*content.ScheduleItem, 0, len(items))
	e.appendItems(items)
	e.unbindAfterReplace()
	e.scheduleChanged()
}

// RestoreSchedule is ReplaceSchedule keeping the stored uniqueIds.
func (e *Engine) RestoreSchedule(items []content.ScheduleItem) {
	e.restore(items)
	e.scheduleChanged()
}

func (e *Engine) restore(items []content.ScheduleItem) {
	e.schedule = make([]*content.ScheduleItem, 0, len(items))
	for i := range items {
		it := items[i].Clone()
		it.Index = len(e.schedule)
		if it.UniqueID <= 0 {
			it.UniqueID = e.nextUniqueID
		}
		if it.UniqueID >= e.nextUniqueID {
			e.nextUniqueID = it.UniqueID + 1
		}
		e.schedule = append(e.schedule, it)
	}
	e.unbindAfterReplace()
}

func (e *Engine) unbindAfterReplace() {
	e.itemIndex = nil
	if e.latest > len(e.schedule)-1 {
		e.latest = len(e.schedule) - 1
	}
}

// Append adds items at the end of the schedule. The selection is untouched.
func (e *Engine) Append(items ...content.ScheduleItem) {
	if len(items) == 0 {
		return
	}
	e.appendItems(items)
	e.scheduleChanged()
}

func (e *Engine) appendItems(items []content.ScheduleItem) {
	for i := range items {
		it := items[i].Clone()
		it.Index = len(e.schedule)
		it.UniqueID = e.nextUniqueID
		e.nextUniqueID++
		e.schedule = append(e.schedule, it)
	}
}

// Remove deletes the item at index, keeping the selection on the same logical
// item when it survives.
func (e *Engine) Remove(index int) {
	if index < 0 || index >= len(e.schedule) {
		return
	}
	e.schedule = append(e.schedule[:index], e.schedule[index+1:]...)
	e.reindex(index)

	if e.itemIndex != nil {
		switch {
		case *e.itemIndex == index:
			e.itemIndex = nil
		case index < *e.itemIndex:
			e.itemIndex = intPtr(*e.itemIndex - 1)
		}
	}
	if index <= e.latest {
		e.latest--
	}
	e.scheduleChanged()
}

// Move relocates one item. A target past the end is clamped to the last slot.
func (e *Engine) Move(from, to int) {
	n := len(e.schedule)
	if from < 0 || from >= n || to < 0 {
		return
	}
	if to >= n {
		to = n - 1
	}
	if from == to {
		return
	}

	it := e.schedule[from]
	e.schedule = append(e.schedule[:from], e.schedule[from+1:]...)
	e.schedule = append(e.schedule[:to], append([]*content.ScheduleItem{it}, e.schedule[to:]...)...)
	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi; i++ {
		e.schedule[i].Index = i
	}

	shift := func(p int) int {
		switch {
		case p == from:
			return to
		case from < p && p <= to:
			return p - 1
		case to <= p && p < from:
			return p + 1
		}
		return p
	}
	if e.itemIndex != nil {
		e.itemIndex = intPtr(shift(*e.itemIndex))
	}
	if e.latest >= 0 {
		e.latest = shift(e.latest)
	}
	e.scheduleChanged()
}

func (e *Engine) reindex(from int) {
	for i := from; i < len(e.schedule); i++ {
		e.schedule[i].Index = i
	}
}

func (e *Engine) scheduleChanged() {
	if e.persister != nil {
		if err := e.persister.SaveSchedule(e.scheduleCopy()); err != nil {
			log.Printf("presenter: persist schedule: %v", err)
		}
	}
	e.notify(ChangeSchedule)
}

// ---------- positioning ----------

// SetCurrentIndex loads schedule[index]; out-of-range indices load item 0.
// The slide/part come from sel when valid, otherwise 0.
func (e *Engine) SetCurrentIndex(index int, sel *content.Selection) {
	e.override = nil
	if len(e.schedule) == 0 {
		e.loaded = nil
		e.itemIndex = nil
		e.slide, e.part = 0, 0
		e.notify(ChangeItem)
		return
	}
	e.bind(index)
	e.positionFrom(sel)
	e.notify(ChangeItem)
}

// SetCurrentItem loads an item that is not part of the schedule. The last
// schedule position is kept so item stepping can resume from it.
func (e *Engine) SetCurrentItem(item content.ScheduleItem, sel *content.Selection) {
	e.override = nil
	e.loaded = item.Clone()
	e.itemIndex = nil
	e.slide, e.part = 0, 0
	e.positionFrom(sel)
	e.notify(ChangeItem)
}

func (e *Engine) positionFrom(sel *content.Selection) {
	e.slide, e.part = 0, 0
	if sel == nil {
		return
	}
	if sel.Slide != nil && e.slideInRange(*sel.Slide) {
		e.slide = *sel.Slide
	}
	if sel.Part != nil {
		e.part = e.clampPart(*sel.Part)
	}
}

// SetSelection moves to a (partial) position. It is used for direct operator
// input and for inbound broadcast frames, and is idempotent.
func (e *Engine) SetSelection(to content.Selection) {
	e.track(func() {
		slideChanged := false
		if to.ScheduleItem != nil && len(e.schedule) > 0 &&
			(e.itemIndex == nil || *e.itemIndex != *to.ScheduleItem) {
			e.bind(*to.ScheduleItem)
			e.slide, e.part = 0, 0
			slideChanged = true
		}
		if to.Slide != nil && e.slideInRange(*to.Slide) && *to.Slide != e.slide {
			e.slide = *to.Slide
			slideChanged = true
		}
		switch {
		case to.Part != nil:
			e.part = e.clampPart(*to.Part)
		case slideChanged:
			e.part = 0
		default:
			e.part = e.clampPart(e.part)
		}
	})
}

// bind loads schedule[index], clamping out-of-range indices to 0.
func (e *Engine) bind(index int) {
	if index < 0 || index >= len(e.schedule) {
		index = 0
	}
	e.loaded = e.schedule[index]
	e.itemIndex = intPtr(index)
	e.latest = index
}

func (e *Engine) slideInRange(i int) bool {
	return e.loaded != nil && i >= 0 && i < len(e.loaded.Slides)
}

func (e *Engine) partCount() int {
	s := e.loaded.SlideAt(e.slide)
	if s == nil {
		return 0
	}
	return s.PartCount()
}

func (e *Engine) lastPart() int {
	if n := e.partCount(); n > 0 {
		return n - 1
	}
	return 0
}

// clampPart maps negative parts to the last part and parts past the end to 0.
func (e *Engine) clampPart(p int) int {
	n := e.partCount()
	switch {
	case n == 0:
		return 0
	case p < 0:
		return n - 1
	case p >= n:
		return 0
	}
	return p
}

// track runs fn, clears the override and notifies listeners about what moved.
func (e *Engine) track(fn func()) {
	prevItem := e.loaded
	prevIndex := copyIntPtr(e.itemIndex)
	prevSel := e.selection()

	fn()
	e.override = nil

	switch {
	case e.loaded != prevItem || !eqIntPtr(prevIndex, e.itemIndex):
		e.notify(ChangeItem)
	case !prevSel.Equal(e.selection()):
		e.notify(ChangeSelection)
	}
}

// ---------- overrides ----------

// SetBlank covers the selection with a blank slide.
func (e *Engine) SetBlank() {
	e.override = &content.OverrideSlide{ID: content.OverrideBlank}
}

// SetLogo covers the selection with the logo slide.
func (e *Engine) SetLogo() {
	e.override = &content.OverrideSlide{ID: content.OverrideLogo}
}

// ClearOverrideSlide removes any override.
func (e *Engine) ClearOverrideSlide() {
	e.override = nil
}

// ---------- mode and config ----------

// SetMode switches the stepping granularity.
func (e *Engine) SetMode(m Mode) {
	e.mode = m
}

// SetConfig replaces the stepping preferences and persists them.
func (e *Engine) SetConfig(cfg Config) {
	e.config = cfg
	if e.persister != nil {
		if err := e.persister.SaveConfig(cfg); err != nil {
			log.Printf("presenter: persist config: %v", err)
		}
	}
}

// ---------- accessors ----------

func (e *Engine) Mode() Mode     { return e.mode }
func (e *Engine) Config() Config { return e.config }

// Override returns the active override slide, if any.
func (e *Engine) Override() *content.OverrideSlide {
	if e.override == nil {
		return nil
	}
	o := *e.override
	return &o
}

// Len is the number of schedule items.
func (e *Engine) Len() int { return len(e.schedule) }

// Schedule returns a copy of the schedule.
func (e *Engine) Schedule() []content.ScheduleItem { return e.scheduleCopy() }

// Item returns a copy of the loaded item, nil when nothing is loaded.
func (e *Engine) Item() *content.ScheduleItem { return e.loaded.Clone() }

// Selection returns the current position.
func (e *Engine) Selection() content.Selection { return e.selection() }

// CurrentSlide returns a copy of the selected slide, nil when none.
func (e *Engine) CurrentSlide() *content.Slide {
	s := e.loaded.SlideAt(e.slide)
	if s == nil {
		return nil
	}
	c := s.Clone()
	return &c
}

// Snapshot returns a detached copy of the whole state.
func (e *Engine) Snapshot() State {
	return State{
		Schedule:                e.scheduleCopy(),
		Item:                    e.loaded.Clone(),
		Selection:               e.selection(),
		Override:                e.Override(),
		Mode:                    e.mode,
		Config:                  e.config,
		LatestScheduleItemIndex: e.latest,
	}
}

func (e *Engine) selection() content.Selection {
	var sel content.Selection
	sel.ScheduleItem = copyIntPtr(e.itemIndex)
	if e.loaded != nil {
		sel.Slide = intPtr(e.slide)
		sel.Part = intPtr(e.part)
	}
	return sel
}

func (e *Engine) scheduleCopy() []content.ScheduleItem {
	out := make([]content.ScheduleItem, len(e.schedule))
	for i, it := range e.schedule {
		out[i] = *it.Clone()
	}
	return out
}

func intPtr(v int) *int { return &v }

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}

func eqIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
