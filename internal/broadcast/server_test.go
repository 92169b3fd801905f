package broadcast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/mghextreme/blu-presenter-sub000/internal/auth"
	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/mghextreme/blu-presenter-sub000/internal/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestServer_HandleHealth(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestServer_Router(t *testing.T) {
	s := NewServer(context.Background(), NewHub(), nil, Options{})
	r := s.Router()

	for _, path := range []string{"/health", "/socket/sessions", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusNotFound, w.Result().StatusCode, path)
	}
}

func TestServer_ForbiddenOrigin(t *testing.T) {
	_, url := startServer(t, newMockStore(), Options{AllowedOrigins: []string{"https://app.example/"}})

	header := http.Header{}
	header.Set("Origin", "http://evil.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example")
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = ws.Close()
}

func TestJoinSession(t *testing.T) {
	store := newMockStore()
	_, url := startServer(t, store, Options{})

	c := dial(t, url)
	joined := c.join("org1", "s1", "shh")

	assert.Equal(t, "s1", joined.SessionID)
	assert.Equal(t, testRecord().Schedule, joined.Schedule)
	assert.Nil(t, joined.ScheduleItem)
	assert.Equal(t, testRecord().Selection, joined.Selection)
}

func TestJoinSession_Errors(t *testing.T) {
	store := newMockStore()
	_, url := startServer(t, store, Options{JWTSecret: []byte("jwt")})

	tests := []struct {
		name string
		req  JoinSessionData
		code string
	}{
		{"missing org", JoinSessionData{SessionID: "s1", Secret: "shh"}, CodeMissingOrgID},
		{"missing session", JoinSessionData{OrgID: "org1", Secret: "shh"}, CodeMissingSessionID},
		{"unknown session", JoinSessionData{OrgID: "org1", SessionID: "nope", Secret: "shh"}, CodeSessionNotFound},
		{"other org", JoinSessionData{OrgID: "org2", SessionID: "s1", Secret: "shh"}, CodeSessionNotFound},
		{"wrong secret", JoinSessionData{OrgID: "org1", SessionID: "s1", Secret: "guess"}, CodeSessionNotFound},
		{"bad token", JoinSessionData{OrgID: "org1", SessionID: "s1", Secret: "shh", Token: "not.a.token"}, CodeJoinFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, url)
			c.send(EventJoinSession, tt.req)
			c.expectError(tt.code)
		})
	}
}

func TestJoinSession_StoreFailure(t *testing.T) {
	store := &sessions.MockStore{}
	store.On("Get", mock.Anything, "org1", "s1").Return(nil, errors.New("db down"))
	_, url := startServer(t, store, Options{})

	c := dial(t, url)
	c.send(EventJoinSession, JoinSessionData{OrgID: "org1", SessionID: "s1", Secret: "shh"})
	c.expectError(CodeJoinFailed)
}

func TestJoinSession_WithToken(t *testing.T) {
	secret := []byte("jwt")
	_, url := startServer(t, newMockStore(), Options{JWTSecret: secret})
	token, err := auth.IssueAccessToken("user-1", secret, time.Minute)
	require.NoError(t, err)

	c := dial(t, url)
	c.send(EventJoinSession, JoinSessionData{OrgID: "org1", SessionID: "s1", Secret: "shh", Token: token})
	c.expect(EventJoinedSession, nil)
}

// A connection whose join was rejected cannot write to the session.
func TestRejectedJoinCannotPublish(t *testing.T) {
	store := newMockStore()
	_, url := startServer(t, store, Options{})

	member := dial(t, url)
	member.join("org1", "s1", "shh")

	intruder := dial(t, url)
	intruder.send(EventJoinSession, JoinSessionData{OrgID: "org1", SessionID: "s1", Secret: "guess"})
	intruder.expectError(CodeSessionNotFound)

	intruder.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 1}})
	intruder.expectError(CodeUnauthorized)

	member.expectNothing(200 * time.Millisecond)
	store.AssertNotCalled(t, "SaveSelection", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRelay(t *testing.T) {
	store := newMockStore()
	_, url := startServer(t, store, Options{})

	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)
	a.join("org1", "s1", "shh")
	b.join("org1", "s1", "shh")
	c.join("org1", "s1", "shh")

	// selection
	{
		want := content.Selection{ScheduleItem: content.Int(0), Slide: content.Int(2), Part: content.Int(-1)}
		store.On("SaveSelection", mock.Anything, "org1", "s1", want).Return(nil).Once()

		a.send(EventSetSelection, map[string]any{
			"sessionId": "s1",
			"selection": map[string]any{"scheduleItem": 0, "slide": 2, "part": -1, "extra": true},
		})

		for _, peer := range []*testConn{b, c} {
			var got SelectionData
			peer.expect(EventSelection, &got)
			assert.Equal(t, "s1", got.SessionID)
			assert.Equal(t, want, got.Selection)
		}
		a.expectNothing(200 * time.Millisecond)
	}

	// schedule is sanitized
	{
		store.On("SaveSchedule", mock.Anything, "org1", "s1", mock.MatchedBy(func(s []content.ScheduleItem) bool {
			return len(s) == 1 && s[0].Title == "Psalm"
		})).Return(nil).Once()

		a.send(EventSetSchedule, map[string]any{
			"sessionId": "s1",
			"schedule":  []any{map[string]any{"title": "Psalm", "type": "text"}, "junk", map[string]any{"type": "video"}},
		})

		var got ScheduleData
		b.expect(EventSchedule, &got)
		require.Len(t, got.Schedule, 1)
		assert.Equal(t, "Psalm", got.Schedule[0].Title)
		c.expect(EventSchedule, nil)
	}

	// schedule item cleared
	{
		store.On("SaveScheduleItem", mock.Anything, "org1", "s1", (*content.ScheduleItem)(nil)).Return(nil).Once()

		b.send(EventSetScheduleItem, map[string]any{"sessionId": "s1", "scheduleItem": nil})

		var got ScheduleItemData
		a.expect(EventScheduleItem, &got)
		assert.Nil(t, got.ScheduleItem)
		c.expect(EventScheduleItem, nil)
	}

	// save failure still relays
	{
		store.On("SaveSelection", mock.Anything, "org1", "s1", mock.Anything).Return(errors.New("db down")).Once()

		a.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 1}})

		a.expectError(CodeSaveFailed)
		b.expect(EventSelection, nil)
		c.expect(EventSelection, nil)
	}

	// other session id
	{
		a.send(EventSetSelection, map[string]any{"sessionId": "s2", "selection": map[string]any{}})
		a.expectError(CodeUnauthorized)
		b.expectNothing(100 * time.Millisecond)
	}

	store.AssertExpectations(t)
}

func TestLeaveSession(t *testing.T) {
	store := newMockStore()
	store.On("SaveSelection", mock.Anything, "org1", "s1", mock.Anything).Return(nil)
	_, url := startServer(t, store, Options{})

	a := dial(t, url)
	b := dial(t, url)
	a.join("org1", "s1", "shh")
	b.join("org1", "s1", "shh")

	a.send(EventLeaveSession, SessionRef{SessionID: "s1"})
	var left SessionRef
	a.expect(EventLeftSession, &left)
	assert.Equal(t, "s1", left.SessionID)

	b.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 0}})
	a.expectNothing(200 * time.Millisecond)

	a.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 0}})
	a.expectError(CodeNotInSession)
	b.expectNothing(100 * time.Millisecond)

	// A fresh join restores membership.
	a.join("org1", "s1", "shh")
	a.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 0}})
	b.expect(EventSelection, nil)
}

func TestBadFrames(t *testing.T) {
	_, url := startServer(t, newMockStore(), Options{})
	c := dial(t, url)

	c.sendRaw(`not json`)
	c.expectError(CodeInvalidFrame)

	c.sendRaw(`{"data":{}}`)
	c.expectError(CodeInvalidFrame)

	c.sendRaw(`{"event":"dance","data":{}}`)
	c.expectError(CodeUnknownEvent)

	c.sendRaw(`{"event":"joinSession","data":[1,2]}`)
	c.expectError(CodeInvalidFrame)

	// The connection is still usable.
	c.join("org1", "s1", "shh")
}

func TestHandlerPanicIsReported(t *testing.T) {
	store := &sessions.MockStore{}
	store.On("Get", mock.Anything, "org1", "s1").Run(func(mock.Arguments) { panic("boom") })
	_, url := startServer(t, store, Options{})

	c := dial(t, url)
	c.send(EventJoinSession, JoinSessionData{OrgID: "org1", SessionID: "s1", Secret: "shh"})
	c.expectError(CodeInternal)

	c.sendRaw(`{"event":"dance"}`)
	c.expectError(CodeUnknownEvent)
}

func TestRedisFanOut(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	newRedis := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	store := newMockStore()
	store.On("SaveSelection", mock.Anything, "org1", "s1", mock.Anything).Return(nil)

	srv1, url1 := startServer(t, store, Options{Redis: newRedis()})
	srv2, url2 := startServer(t, store, Options{Redis: newRedis()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, s := range []*Server{srv1, srv2} {
		go func(s *Server) { _ = s.RunRedisSubscriber(ctx) }(s)
		select {
		case <-s.Subscribed():
		case <-time.After(waitFor):
			t.Fatal("redis subscription not ready")
		}
	}

	a := dial(t, url1)
	b := dial(t, url2)
	local := dial(t, url1)
	a.join("org1", "s1", "shh")
	b.join("org1", "s1", "shh")
	local.join("org1", "s1", "shh")

	a.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 3}})

	var got SelectionData
	b.expect(EventSelection, &got)
	assert.Equal(t, content.Int(3), got.Selection.Slide)
	local.expect(EventSelection, nil)
	a.expectNothing(200 * time.Millisecond)
}

func TestRedisPublishFailureFallsBackToLocal(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := newMockStore()
	store.On("SaveSelection", mock.Anything, "org1", "s1", mock.Anything).Return(nil)
	_, url := startServer(t, store, Options{Redis: rdb})

	a := dial(t, url)
	b := dial(t, url)
	a.join("org1", "s1", "shh")
	b.join("org1", "s1", "shh")

	mr.SetError("redis connection failed")
	a.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 1}})
	b.expect(EventSelection, nil)
}

func TestRedisSubscriberRecoversAfterOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	addr := mr.Addr()
	mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer rdb.Close()

	store := newMockStore()
	store.On("SaveSelection", mock.Anything, "org1", "s1", mock.Anything).Return(nil)
	srv, url := startServer(t, store, Options{Redis: rdb, RedisRetryMax: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.RunRedisSubscriber(ctx) }()

	a := dial(t, url)
	b := dial(t, url)
	a.join("org1", "s1", "shh")
	b.join("org1", "s1", "shh")

	// Redis is down: frames still reach local members.
	a.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 1}})
	var got SelectionData
	b.expect(EventSelection, &got)
	assert.Equal(t, content.Int(1), got.Selection.Slide)

	require.NoError(t, mr.StartAddr(addr))
	select {
	case <-srv.Subscribed():
	case err := <-done:
		t.Fatalf("subscriber stopped: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("redis subscription not ready")
	}

	a.send(EventSetSelection, map[string]any{"sessionId": "s1", "selection": map[string]any{"slide": 2}})
	b.expect(EventSelection, &got)
	assert.Equal(t, content.Int(2), got.Selection.Slide)
	b.expectNothing(200 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("subscriber did not stop")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://a.example/"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest("GET", "/socket/sessions", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("https://a.example")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://b.example")))
	assert.True(t, originChecker(nil)(req("https://anything")))
}
