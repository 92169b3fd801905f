package presenter

// stepper is the stepping strategy selected by Mode.
type stepper interface {
	next(e *Engine)
	previous(e *Engine)
}

type partStepper struct{}

func (partStepper) next(e *Engine)     { e.nextPart() }
func (partStepper) previous(e *Engine) { e.previousPart() }

type slideStepper struct{}

func (slideStepper) next(e *Engine) { e.nextSlide(e.config.AutoAdvanceScheduleItem) }
func (slideStepper) previous(e *Engine) {
	e.previousSlide(false, e.config.AutoAdvanceScheduleItem)
}

var steppers = map[Mode]stepper{
	ModePart:  partStepper{},
	ModeSlide: slideStepper{},
}

func (e *Engine) stepper() stepper {
	if s, ok := steppers[e.mode]; ok {
		return s
	}
	return partStepper{}
}

// Next steps forward at the granularity of the current mode.
func (e *Engine) Next() { e.track(func() { e.stepper().next(e) }) }

// Previous steps backward at the granularity of the current mode.
func (e *Engine) Previous() { e.track(func() { e.stepper().previous(e) }) }

// NextPart moves to the next content part, falling through to the next slide.
func (e *Engine) NextPart() { e.track(e.nextPart) }

// PreviousPart moves to the previous content part, falling through to the
// last part of the previous slide.
func (e *Engine) PreviousPart() { e.track(e.previousPart) }

// NextSlide moves to the next slide. At the last slide it crosses into the
// next item only when auto-advance is enabled.
func (e *Engine) NextSlide() {
	e.track(func() { e.nextSlide(e.config.AutoAdvanceScheduleItem) })
}

// PreviousSlide moves to the previous slide. At the first slide it crosses
// into the end of the previous item only when auto-advance is enabled.
func (e *Engine) PreviousSlide() {
	e.track(func() { e.previousSlide(false, e.config.AutoAdvanceScheduleItem) })
}

// NextItem loads the first slide of the next schedule item.
func (e *Engine) NextItem() { e.track(e.nextItem) }

// PreviousItem loads the previous schedule item, on its last slide and part
// when goToEnd is set.
func (e *Engine) PreviousItem(goToEnd bool) {
	e.track(func() { e.previousItem(goToEnd) })
}

func (e *Engine) nextPart() {
	if e.loaded == nil {
		e.nextItem()
		return
	}
	if e.part < e.partCount()-1 {
		e.part++
		return
	}
	e.nextSlide(e.config.AutoAdvanceScheduleItem)
}

func (e *Engine) previousPart() {
	if e.loaded == nil {
		e.previousItem(true)
		return
	}
	if e.part > 0 {
		e.part--
		return
	}
	e.previousSlide(true, e.config.AutoAdvanceScheduleItem)
}

func (e *Engine) nextSlide(advance bool) {
	if e.loaded == nil {
		e.nextItem()
		return
	}
	if e.slide < len(e.loaded.Slides)-1 {
		e.slide++
		e.part = 0
		return
	}
	if advance {
		e.nextItem()
	}
}

func (e *Engine) previousSlide(toLastPart, advance bool) {
	if e.loaded == nil {
		e.previousItem(true)
		return
	}
	if e.slide > 0 {
		e.slide--
		e.part = 0
		if toLastPart {
			e.part = e.lastPart()
		}
		return
	}
	if advance {
		e.previousItem(true)
	}
}

// nextItem never wraps past the end of the schedule. Without a bound schedule
// position it resumes after the latest one.
func (e *Engine) nextItem() {
	target := e.latest + 1
	if e.itemIndex != nil {
		target = *e.itemIndex + 1
	}
	if target < 0 || target >= len(e.schedule) {
		return
	}
	e.bind(target)
	e.slide, e.part = 0, 0
}

// previousItem never wraps before index 0. Without a bound schedule position
// it returns to the latest one.
func (e *Engine) previousItem(goToEnd bool) {
	target := e.latest
	if e.itemIndex != nil {
		target = *e.itemIndex - 1
	}
	if target < 0 || target >= len(e.schedule) {
		return
	}
	e.bind(target)
	e.slide, e.part = 0, 0
	if goToEnd {
		if n := len(e.loaded.Slides); n > 0 {
			e.slide = n - 1
		}
		e.part = e.lastPart()
	}
}
