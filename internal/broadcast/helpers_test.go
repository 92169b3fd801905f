package broadcast

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/mghextreme/blu-presenter-sub000/internal/sessions"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// startServer runs a relay backed by store and returns its websocket URL.
func startServer(t *testing.T, store sessions.Store, opts Options) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	srv := NewServer(ctx, hub, store, opts)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + srv.socketPath
}

// testConn reads frames in the background so tests can wait on them.
type testConn struct {
	t        *testing.T
	ws       *websocket.Conn
	frames   chan Frame
	socketID string
}

func dial(t *testing.T, url string) *testConn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	c := &testConn{t: t, ws: ws, frames: make(chan Frame, 32)}
	go func() {
		defer close(c.frames)
		for {
			_, b, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if json.Unmarshal(b, &f) == nil {
				c.frames <- f
			}
		}
	}()

	var hello ConnectedData
	c.expect(EventConnected, &hello)
	require.NotEmpty(t, hello.SocketID)
	c.socketID = hello.SocketID
	return c
}

func (c *testConn) send(event string, data any) {
	c.t.Helper()
	b, err := EncodeFrame(event, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, b))
}

func (c *testConn) sendRaw(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// expect waits for the next frame, requires its event and decodes its data
// into out when out is not nil.
func (c *testConn) expect(event string, out any) Frame {
	c.t.Helper()
	select {
	case f, ok := <-c.frames:
		require.True(c.t, ok, "connection closed while waiting for %s", event)
		require.Equal(c.t, event, f.Event, "data: %s", f.Data)
		if out != nil {
			require.NoError(c.t, json.Unmarshal(f.Data, out))
		}
		return f
	case <-time.After(waitFor):
		c.t.Fatalf("timed out waiting for %s", event)
	}
	return Frame{}
}

func (c *testConn) expectError(code string) {
	c.t.Helper()
	var e ErrorData
	c.expect(EventError, &e)
	require.Equal(c.t, code, e.Code)
}

func (c *testConn) expectNothing(d time.Duration) {
	c.t.Helper()
	select {
	case f, ok := <-c.frames:
		if ok {
			c.t.Fatalf("unexpected frame %s: %s", f.Event, f.Data)
		}
	case <-time.After(d):
	}
}

func (c *testConn) join(orgID, sessionID, secret string) JoinedSessionData {
	c.t.Helper()
	c.send(EventJoinSession, JoinSessionData{OrgID: orgID, SessionID: sessionID, Secret: secret})
	var joined JoinedSessionData
	c.expect(EventJoinedSession, &joined)
	return joined
}

func testRecord() *sessions.Record {
	return &sessions.Record{
		BroadcastSession: content.BroadcastSession{ID: "s1", OrgID: "org1", Secret: "shh"},
		Schedule: []content.ScheduleItem{{
			ID: "a", UniqueID: 1, Title: "Hymn", Kind: content.KindSong,
			Slides: []content.Slide{{Contents: []content.SlideContent{content.TextContent{Text: "verse"}}}},
		}},
		Selection: content.Selection{ScheduleItem: content.Int(0), Slide: content.Int(0), Part: content.Int(0)},
	}
}

func newMockStore() *sessions.MockStore {
	store := &sessions.MockStore{}
	store.On("Get", mock.Anything, "org1", "s1").Return(testRecord(), nil).Maybe()
	store.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, sessions.ErrNotFound).Maybe()
	return store
}
