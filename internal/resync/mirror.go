package resync

import (
	"encoding/json"
	"sync"

	"github.com/mghextreme/blu-presenter-sub000/internal/broadcast"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
	"github.com/mghextreme/blu-presenter-sub000/internal/sanitize"
)

// statePayload is the union of the joinedSession, schedule, scheduleItem and
// selection frame bodies. Each field stays raw until it is sanitized.
type statePayload struct {
	SessionID    string          `json:"sessionId"`
	Schedule     json.RawMessage `json:"schedule"`
	ScheduleItem json.RawMessage `json:"scheduleItem"`
	Selection    json.RawMessage `json:"selection"`
}

// Mirror applies the frames of a joined session to a local engine. Every
// frame is a full replace of its part of the state, so replays and
// duplicates are harmless.
type Mirror struct {
	engine *presenter.Engine
	mu     *sync.Mutex
}

func NewMirror(client *Client, engine *presenter.Engine, mu *sync.Mutex) *Mirror {
	m := &Mirror{engine: engine, mu: mu}
	client.On(broadcast.EventJoinedSession, m.handle(true, true, true))
	client.On(broadcast.EventSchedule, m.handle(true, false, false))
	client.On(broadcast.EventScheduleItem, m.handle(false, true, false))
	client.On(broadcast.EventSelection, m.handle(false, false, true))
	return m
}

func (m *Mirror) handle(schedule, item, selection bool) Handler {
	return func(data json.RawMessage) {
		var p statePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if schedule {
			m.ApplySchedule(p.Schedule)
		}
		if item {
			m.ApplyScheduleItem(p.ScheduleItem)
		}
		if selection {
			m.ApplySelection(p.Selection)
		}
	}
}

// ApplySchedule replaces the schedule keeping the sender's uniqueIds.
// The caller holds the engine lock.
func (m *Mirror) ApplySchedule(raw json.RawMessage) {
	m.engine.RestoreSchedule(sanitize.Schedule(raw))
}

// ApplyScheduleItem loads the sender's item. A missing item leaves the
// current one in place.
func (m *Mirror) ApplyScheduleItem(raw json.RawMessage) {
	it := sanitize.ScheduleItem(raw)
	if it == nil {
		return
	}
	m.engine.SetCurrentItem(*it, nil)
}

// ApplySelection moves to the sender's position.
func (m *Mirror) ApplySelection(raw json.RawMessage) {
	m.engine.SetSelection(sanitize.Selection(raw))
}
