package resync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mghextreme/blu-presenter-sub000/internal/broadcast"
	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func song(id string, parts ...int) content.ScheduleItem {
	it := content.ScheduleItem{ID: id, Title: id, Kind: content.KindSong}
	for _, n := range parts {
		var s content.Slide
		for i := 0; i < n; i++ {
			s.Contents = append(s.Contents, content.TextContent{Text: id})
		}
		it.Slides = append(it.Slides, s)
	}
	return it
}

type side struct {
	mu     sync.Mutex
	engine *presenter.Engine
	client *Client
}

func (s *side) do(fn func(e *presenter.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

func (s *side) snapshot() presenter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

func assertMirrored(t *testing.T, controller, receiver *side) {
	t.Helper()
	require.Eventually(t, func() bool {
		c, r := controller.snapshot(), receiver.snapshot()
		return assert.ObjectsAreEqual(c.Schedule, r.Schedule) &&
			assert.ObjectsAreEqual(c.Item, r.Item) &&
			c.Selection.Equal(r.Selection)
	}, waitFor, 20*time.Millisecond)
}

func TestPublisherAndMirror(t *testing.T) {
	_, _, url := startRelay(t)

	receiver := &side{engine: presenter.New(), client: newTestClient(t, url)}
	NewMirror(receiver.client, receiver.engine, &receiver.mu)
	receiverJoined := frames(receiver.client, broadcast.EventJoinedSession)
	receiver.client.Connect(context.Background())
	require.NoError(t, receiver.client.JoinSession(joinS1))
	next(t, receiverJoined, "receiver join")

	controller := &side{engine: presenter.New(), client: newTestClient(t, url)}
	NewPublisher(controller.client, controller.engine, &controller.mu)
	controller.do(func(e *presenter.Engine) {
		e.ReplaceSchedule([]content.ScheduleItem{song("a", 2, 3), song("b", 1)})
		e.SetCurrentIndex(0, nil)
		e.NextPart()
	})
	controllerJoined := frames(controller.client, broadcast.EventJoinedSession)
	controller.client.Connect(context.Background())
	require.NoError(t, controller.client.JoinSession(joinS1))
	next(t, controllerJoined, "controller join")

	// The join replays the whole local state.
	assertMirrored(t, controller, receiver)
	assert.Equal(t, content.Int(1), receiver.snapshot().Selection.Part)

	controller.do(func(e *presenter.Engine) { e.NextSlide() })
	assertMirrored(t, controller, receiver)

	controller.do(func(e *presenter.Engine) { e.NextItem() })
	assertMirrored(t, controller, receiver)
	assert.Equal(t, "b", receiver.snapshot().Item.ID)

	controller.do(func(e *presenter.Engine) {
		e.Append(song("c", 1))
		e.Move(2, 0)
	})
	assertMirrored(t, controller, receiver)

	controller.do(func(e *presenter.Engine) { e.SetCurrentItem(song("adhoc", 2), nil) })
	assertMirrored(t, controller, receiver)
	assert.Nil(t, receiver.snapshot().Selection.ScheduleItem)
}

func TestMirrorIgnoresGarbage(t *testing.T) {
	var mu sync.Mutex
	e := presenter.New()
	m := &Mirror{engine: e, mu: &mu}

	m.ApplySchedule(json.RawMessage(`[{"id":"a","type":"song","uniqueId":9,"slides":[{"contents":[{"type":"text","text":"x"}]}]}]`))
	m.ApplySelection(json.RawMessage(`{"scheduleItem":0,"slide":0,"part":0}`))
	before := e.Snapshot()

	m.handle(true, true, true)(json.RawMessage(`"nope"`))
	m.ApplyScheduleItem(json.RawMessage(`{"type":"video"}`))
	m.ApplySelection(json.RawMessage(`{"slide":"x"}`))

	after := e.Snapshot()
	assert.Equal(t, before.Schedule, after.Schedule)
	assert.Equal(t, 9, after.Schedule[0].UniqueID)
	assert.True(t, before.Selection.Equal(after.Selection))
}

func TestPublisherSkipsWithoutSession(t *testing.T) {
	var mu sync.Mutex
	c := NewClient(Options{})
	e := presenter.New()
	NewPublisher(c, e, &mu)

	// Not connected and not joined: changes are dropped silently.
	e.ReplaceSchedule([]content.ScheduleItem{song("a", 1)})
	e.NextItem()
	assert.Equal(t, 1, e.Len())
}

// startStalledRelay confirms every join and then never reads again, so the
// client's socket buffers fill up.
func startStalledRelay(t *testing.T) (string, func()) {
	t.Helper()
	stop := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(stop) }) }

	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		b, _ := broadcast.EncodeFrame(broadcast.EventJoinedSession, broadcast.JoinedSessionData{SessionID: "s1"})
		_ = conn.WriteMessage(websocket.TextMessage, b)
		<-stop
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(release)
	return "ws" + strings.TrimPrefix(ts.URL, "http"), release
}

func TestPublisherDoesNotWaitOnStalledRelay(t *testing.T) {
	url, release := startStalledRelay(t)

	c := newTestClient(t, url)
	joined := frames(c, broadcast.EventJoinedSession)
	var mu sync.Mutex
	e := presenter.New()
	NewPublisher(c, e, &mu)
	require.NoError(t, c.JoinSession(joinS1))
	c.Connect(context.Background())
	next(t, joined, "join")

	big := make([]content.ScheduleItem, 10)
	for i := range big {
		var s content.Slide
		for j := 0; j < 30; j++ {
			s.Contents = append(s.Contents, content.TextContent{Text: strings.Repeat("la ", 1600)})
		}
		big[i] = content.ScheduleItem{ID: strconv.Itoa(i), Title: "verse", Kind: content.KindSong, Slides: []content.Slide{s}}
	}

	start := time.Now()
	for i := 0; i < 20; i++ {
		mu.Lock()
		e.ReplaceSchedule(big)
		e.Next()
		mu.Unlock()
	}
	assert.Less(t, time.Since(start), 5*time.Second)

	// Close the relay side so Disconnect does not wait on a full buffer.
	release()
}
