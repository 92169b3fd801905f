package broadcast

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mghextreme/blu-presenter-sub000/internal/auth"
	"github.com/mghextreme/blu-presenter-sub000/internal/sanitize"
	"github.com/mghextreme/blu-presenter-sub000/internal/sessions"
)

const storeTimeout = 5 * time.Second

// dispatch runs the handler for one inbound frame. A panicking handler is
// reported to the sender and does not take the connection down.
func (s *Server) dispatch(c *Client, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broadcast: %s handler panic: %v", f.Event, r)
			c.emitError(CodeInternal, "internal error")
		}
	}()

	switch f.Event {
	case EventJoinSession:
		s.handleJoin(c, f.Data)
	case EventLeaveSession:
		s.handleLeave(c, f.Data)
	case EventSetSchedule:
		s.handleSetSchedule(c, f.Data)
	case EventSetScheduleItem:
		s.handleSetScheduleItem(c, f.Data)
	case EventSetSelection:
		s.handleSetSelection(c, f.Data)
	default:
		c.emitError(CodeUnknownEvent, "unknown event "+f.Event)
	}
}

func (s *Server) handleJoin(c *Client, data json.RawMessage) {
	var req JoinSessionData
	if err := json.Unmarshal(data, &req); err != nil {
		joins.WithLabelValues("invalid").Inc()
		c.emitError(CodeInvalidFrame, "invalid joinSession payload")
		return
	}
	if req.OrgID == "" {
		joins.WithLabelValues("rejected").Inc()
		c.emitError(CodeMissingOrgID, "orgId is required")
		return
	}
	if req.SessionID == "" {
		joins.WithLabelValues("rejected").Inc()
		c.emitError(CodeMissingSessionID, "sessionId is required")
		return
	}

	var userID string
	if req.Token != "" {
		uid, err := auth.VerifyAccessToken(req.Token, s.jwtSecret)
		if err != nil {
			joins.WithLabelValues("failed").Inc()
			c.emitError(CodeJoinFailed, "invalid token")
			return
		}
		userID = uid
	}

	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	rec, err := s.store.Get(ctx, req.OrgID, req.SessionID)
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		joins.WithLabelValues("not_found").Inc()
		c.emitError(CodeSessionNotFound, "session not found")
		return
	case err != nil:
		log.Printf("broadcast: join %s: %v", req.SessionID, err)
		joins.WithLabelValues("failed").Inc()
		c.emitError(CodeJoinFailed, "could not join session")
		return
	}
	if subtle.ConstantTimeCompare([]byte(rec.Secret), []byte(req.Secret)) != 1 {
		joins.WithLabelValues("not_found").Inc()
		c.emitError(CodeSessionNotFound, "session not found")
		return
	}

	room := roomName(req.SessionID)
	for r := range c.rooms {
		if r != room {
			s.hub.Leave(c, r)
			delete(c.rooms, r)
		}
	}
	if !s.hub.Join(c, room) {
		joins.WithLabelValues("failed").Inc()
		c.emitError(CodeJoinFailed, "relay is shutting down")
		return
	}
	c.rooms[room] = true
	c.binding = &binding{orgID: req.OrgID, sessionID: req.SessionID, userID: userID}

	joins.WithLabelValues("ok").Inc()
	c.emit(EventJoinedSession, JoinedSessionData{
		SessionID:    req.SessionID,
		Schedule:     rec.Schedule,
		ScheduleItem: rec.ScheduleItem,
		Selection:    rec.Selection,
	})
}

func (s *Server) handleLeave(c *Client, data json.RawMessage) {
	var req SessionRef
	if err := json.Unmarshal(data, &req); err != nil {
		c.emitError(CodeInvalidFrame, "invalid leaveSession payload")
		return
	}
	if req.SessionID == "" {
		c.emitError(CodeMissingSessionID, "sessionId is required")
		return
	}
	room := roomName(req.SessionID)
	if c.rooms[room] {
		s.hub.Leave(c, room)
		delete(c.rooms, room)
	}
	c.emit(EventLeftSession, SessionRef{SessionID: req.SessionID})
}

// authorize checks the connection may write to sessionID and returns its
// binding.
func (s *Server) authorize(c *Client, sessionID string) (*binding, bool) {
	if c.binding == nil || sessionID == "" || c.binding.sessionID != sessionID {
		c.emitError(CodeUnauthorized, "connection is not bound to this session")
		return nil, false
	}
	if !c.rooms[roomName(sessionID)] {
		c.emitError(CodeNotInSession, "connection is not in the session room")
		return nil, false
	}
	return c.binding, true
}

func decodeSet(c *Client, data json.RawMessage) (setPayload, bool) {
	var req setPayload
	if err := json.Unmarshal(data, &req); err != nil {
		c.emitError(CodeInvalidFrame, "invalid payload")
		return req, false
	}
	return req, true
}

func (s *Server) handleSetSchedule(c *Client, data json.RawMessage) {
	req, ok := decodeSet(c, data)
	if !ok {
		return
	}
	b, ok := s.authorize(c, req.SessionID)
	if !ok {
		return
	}
	schedule := sanitize.Schedule(req.Schedule)
	s.persist(c, EventSetSchedule, func(ctx context.Context) error {
		return s.store.SaveSchedule(ctx, b.orgID, b.sessionID, schedule)
	})
	s.relay(c, EventSchedule, ScheduleData{SessionID: b.sessionID, Schedule: schedule})
}

func (s *Server) handleSetScheduleItem(c *Client, data json.RawMessage) {
	req, ok := decodeSet(c, data)
	if !ok {
		return
	}
	b, ok := s.authorize(c, req.SessionID)
	if !ok {
		return
	}
	item := sanitize.ScheduleItem(req.ScheduleItem)
	s.persist(c, EventSetScheduleItem, func(ctx context.Context) error {
		return s.store.SaveScheduleItem(ctx, b.orgID, b.sessionID, item)
	})
	s.relay(c, EventScheduleItem, ScheduleItemData{SessionID: b.sessionID, ScheduleItem: item})
}

func (s *Server) handleSetSelection(c *Client, data json.RawMessage) {
	req, ok := decodeSet(c, data)
	if !ok {
		return
	}
	b, ok := s.authorize(c, req.SessionID)
	if !ok {
		return
	}
	sel := sanitize.Selection(req.Selection)
	s.persist(c, EventSetSelection, func(ctx context.Context) error {
		return s.store.SaveSelection(ctx, b.orgID, b.sessionID, sel)
	})
	s.relay(c, EventSelection, SelectionData{SessionID: b.sessionID, Selection: sel})
}

// persist stores the latest state. A failure is reported to the sender but
// the frame is still relayed.
func (s *Server) persist(c *Client, event string, save func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	if err := save(ctx); err != nil {
		log.Printf("broadcast: %s: persist: %v", event, err)
		c.emitError(CodeSaveFailed, "could not save session state")
	}
}

func (s *Server) relay(c *Client, event string, data any) {
	payload, err := EncodeFrame(event, data)
	if err != nil {
		log.Printf("broadcast: encode %s: %v", event, err)
		return
	}
	relayed.WithLabelValues(event).Inc()
	s.publish(roomMessage{Room: roomName(c.binding.sessionID), Exclude: c.id, Payload: payload})
}
