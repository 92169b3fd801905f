package broadcast

import (
	"encoding/json"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
)

// Frame is the envelope of every message on the session socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client to server events.
const (
	EventJoinSession     = "joinSession"
	EventLeaveSession    = "leaveSession"
	EventSetSchedule     = "setSchedule"
	EventSetScheduleItem = "setScheduleItem"
	EventSetSelection    = "setSelection"
)

// Server to client events.
const (
	EventConnected     = "connected"
	EventJoinedSession = "joinedSession"
	EventLeftSession   = "leftSession"
	EventSchedule      = "schedule"
	EventScheduleItem  = "scheduleItem"
	EventSelection     = "selection"
	EventError         = "error"
)

// Error codes carried by error frames.
const (
	CodeMissingOrgID     = "missing.orgId"
	CodeMissingSessionID = "missing.sessionId"
	CodeSessionNotFound  = "session.notFound"
	CodeJoinFailed       = "join.failed"
	CodeUnauthorized     = "unauthorized"
	CodeNotInSession     = "notInSession"
	CodeInvalidFrame     = "invalid.frame"
	CodeUnknownEvent     = "unknown.event"
	CodeSaveFailed       = "save.failed"
	CodeInternal         = "internal"
)

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConnectedData struct {
	Message  string `json:"message"`
	SocketID string `json:"socketId"`
}

type JoinSessionData struct {
	OrgID     string `json:"orgId"`
	SessionID string `json:"sessionId"`
	Secret    string `json:"secret"`
	Token     string `json:"token,omitempty"`
}

type JoinedSessionData struct {
	SessionID    string                 `json:"sessionId"`
	Schedule     []content.ScheduleItem `json:"schedule"`
	ScheduleItem *content.ScheduleItem  `json:"scheduleItem"`
	Selection    content.Selection      `json:"selection"`
}

type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// ScheduleData is both the setSchedule payload and the relayed schedule frame.
type ScheduleData struct {
	SessionID string                 `json:"sessionId"`
	Schedule  []content.ScheduleItem `json:"schedule"`
}

type ScheduleItemData struct {
	SessionID    string                `json:"sessionId"`
	ScheduleItem *content.ScheduleItem `json:"scheduleItem"`
}

type SelectionData struct {
	SessionID string            `json:"sessionId"`
	Selection content.Selection `json:"selection"`
}

// inbound mutation payloads keep the body raw until it is sanitized.
type setPayload struct {
	SessionID    string          `json:"sessionId"`
	Schedule     json.RawMessage `json:"schedule"`
	ScheduleItem json.RawMessage `json:"scheduleItem"`
	Selection    json.RawMessage `json:"selection"`
}

// EncodeFrame marshals event and data into a wire frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
