package resync

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/mghextreme/blu-presenter-sub000/internal/broadcast"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
	"github.com/mghextreme/blu-presenter-sub000/internal/sanitize"
)

// Publisher sends every broadcastable engine change to the joined session
// and replays the whole local state each time the session is (re)joined.
//
// mu guards the engine; the caller driving the engine must hold it too.
type Publisher struct {
	client *Client
	engine *presenter.Engine
	mu     *sync.Mutex
}

func NewPublisher(client *Client, engine *presenter.Engine, mu *sync.Mutex) *Publisher {
	p := &Publisher{client: client, engine: engine, mu: mu}
	engine.OnChange(p.onChange)
	client.On(broadcast.EventJoinedSession, func(json.RawMessage) { p.Replay() })
	return p
}

// onChange runs inside an engine operation, with mu already held.
func (p *Publisher) onChange(kind presenter.ChangeKind) {
	sessionID := p.client.ConnectedSessionID()
	if sessionID == "" {
		return
	}
	switch kind {
	case presenter.ChangeSchedule:
		// Moves and removals shift the bound index without a selection change.
		p.emitSchedule(sessionID)
		p.emitSelection(sessionID)
	case presenter.ChangeItem:
		p.emitItem(sessionID)
		p.emitSelection(sessionID)
	case presenter.ChangeSelection:
		p.emitSelection(sessionID)
	}
}

// Replay sends schedule, item and selection.
func (p *Publisher) Replay() {
	sessionID := p.client.ConnectedSessionID()
	if sessionID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitSchedule(sessionID)
	p.emitItem(sessionID)
	p.emitSelection(sessionID)
}

func (p *Publisher) emitSchedule(sessionID string) {
	p.emit(broadcast.EventSetSchedule, broadcast.ScheduleData{
		SessionID: sessionID,
		Schedule:  sanitize.Schedule(p.engine.Schedule()),
	})
}

func (p *Publisher) emitItem(sessionID string) {
	var data broadcast.ScheduleItemData
	data.SessionID = sessionID
	if it := p.engine.Item(); it != nil {
		data.ScheduleItem = sanitize.ScheduleItem(it)
	}
	p.emit(broadcast.EventSetScheduleItem, data)
}

func (p *Publisher) emitSelection(sessionID string) {
	p.emit(broadcast.EventSetSelection, broadcast.SelectionData{
		SessionID: sessionID,
		Selection: sanitize.Selection(p.engine.Selection()),
	})
}

func (p *Publisher) emit(event string, data any) {
	if err := p.client.Emit(event, data); err != nil {
		log.Printf("resync: emit %s: %v", event, err)
	}
}
