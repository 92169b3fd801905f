// Package resync keeps a controller or receiver attached to a broadcast
// session across disconnects.
package resync

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/mghextreme/blu-presenter-sub000/internal/broadcast"
)

var (
	ErrNotConnected = errors.New("resync: not connected")
	ErrQueueFull    = errors.New("resync: send queue full")
)

const writeWait = 10 * time.Second

// JoinParams identifies the session to attach to.
type JoinParams struct {
	OrgID     string
	SessionID string
	Secret    string
	Token     string
}

// Handler receives the data of one inbound frame.
type Handler func(data json.RawMessage)

type Options struct {
	URL        string
	Header     http.Header
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// SendBuffer is the number of outbound frames queued per socket.
	SendBuffer int
}

// Client wraps one logical connection to the relay. The physical socket is
// redialed forever; after each successful dial the target session is joined
// again because room membership does not survive a reconnect.
type Client struct {
	opts Options

	mu        sync.Mutex
	link      *link
	target    *JoinParams
	sessionID string
	handlers  map[string][]Handler
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Client{opts: opts, handlers: make(map[string][]Handler)}
}

// On registers h for event. Handlers run on the read goroutine.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Connect starts the connection loop. It returns at once and is a no-op
// while the loop is already running.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Disconnect leaves the joined session, then tears the connection down.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sessionID := c.sessionID
	cancel, done := c.cancel, c.done
	c.target = nil
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	if sessionID != "" {
		if err := c.Emit(broadcast.EventLeaveSession, broadcast.SessionRef{SessionID: sessionID}); err != nil {
			log.Printf("resync: leave %s: %v", sessionID, err)
		}
	}
	cancel()
	c.closeConn(true)
	<-done
}

// IsConnected reports whether a socket is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// ConnectedSessionID is the session the relay confirmed, empty when none.
func (c *Client) ConnectedSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// JoinSession makes p the target session and joins it now when connected.
// A disconnected client joins as soon as it connects.
func (c *Client) JoinSession(p JoinParams) error {
	c.mu.Lock()
	target := p
	c.target = &target
	if c.sessionID != p.SessionID {
		c.sessionID = ""
	}
	connected := c.link != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendJoin(target)
}

// LeaveSession stops following id.
func (c *Client) LeaveSession(id string) error {
	c.mu.Lock()
	if c.target != nil && c.target.SessionID == id {
		c.target = nil
	}
	if c.sessionID == id {
		c.sessionID = ""
	}
	connected := c.link != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Emit(broadcast.EventLeaveSession, broadcast.SessionRef{SessionID: id})
}

// Emit queues one frame and never blocks on the network. When the queue is
// full the socket is dropped; the reconnect rejoins and the publisher replays
// the whole state.
func (c *Client) Emit(event string, data any) error {
	b, err := broadcast.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	if !l.enqueue(b) {
		log.Printf("resync: send queue full, dropping connection")
		_ = l.conn.Close()
		return ErrQueueFull
	}
	return nil
}

func (c *Client) sendJoin(p JoinParams) error {
	return c.Emit(broadcast.EventJoinSession, broadcast.JoinSessionData{
		OrgID:     p.OrgID,
		SessionID: p.SessionID,
		Secret:    p.Secret,
		Token:     p.Token,
	})
}

func (c *Client) rejoin() {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()
	if target == nil {
		return
	}
	if err := c.sendJoin(*target); err != nil {
		log.Printf("resync: join %s: %v", target.SessionID, err)
	}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.MinBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		var conn *websocket.Conn
		dial := func() error {
			var err error
			conn, _, err = c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
			return err
		}
		notify := func(err error, wait time.Duration) {
			log.Printf("resync: dial %s: %v (retry in %s)", c.opts.URL, err, wait)
		}
		if err := backoff.RetryNotify(dial, c.newBackOff(ctx), notify); err != nil {
			return
		}

		c.mu.Lock()
		c.link = newLink(conn, c.opts.SendBuffer)
		c.mu.Unlock()
		if ctx.Err() != nil {
			c.closeConn(false)
			return
		}

		c.rejoin()
		c.readLoop(conn)
		c.closeConn(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.MinBackoff):
		}
	}
}

// closeConn retires the current socket. With flush the queued frames are
// written before the socket closes.
func (c *Client) closeConn(flush bool) {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.sessionID = ""
	c.mu.Unlock()
	if l == nil {
		return
	}
	if flush {
		l.stop()
		_ = l.conn.Close()
		return
	}
	_ = l.conn.Close()
	l.stop()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("resync: read: %v", err)
			}
			return
		}
		var f broadcast.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			log.Printf("resync: bad frame: %v", err)
			continue
		}
		if c.accept(f) {
			c.dispatch(f)
		}
	}
}

// accept applies the session bookkeeping for f and reports whether handlers
// should see it.
func (c *Client) accept(f broadcast.Frame) bool {
	switch f.Event {
	case broadcast.EventJoinedSession:
		var ref broadcast.SessionRef
		_ = json.Unmarshal(f.Data, &ref)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.target == nil || c.target.SessionID != ref.SessionID {
			return false
		}
		c.sessionID = ref.SessionID
		return true

	case broadcast.EventSchedule, broadcast.EventScheduleItem, broadcast.EventSelection:
		var ref broadcast.SessionRef
		_ = json.Unmarshal(f.Data, &ref)
		c.mu.Lock()
		defer c.mu.Unlock()
		return ref.SessionID != "" && ref.SessionID == c.sessionID

	case broadcast.EventError:
		var e broadcast.ErrorData
		_ = json.Unmarshal(f.Data, &e)
		if e.Code == broadcast.CodeNotInSession {
			c.mu.Lock()
			c.sessionID = ""
			c.mu.Unlock()
			c.rejoin()
		}
	}
	return true
}

func (c *Client) dispatch(f broadcast.Frame) {
	c.mu.Lock()
	hs := append([]Handler(nil), c.handlers[f.Event]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(f.Data)
	}
}
