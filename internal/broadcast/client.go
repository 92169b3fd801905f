package broadcast

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// binding is what a successful joinSession attaches to a connection. It
// outlives leaveSession so later mutations can be told apart as notInSession.
type binding struct {
	orgID     string
	sessionID string
	userID    string
}

// Client is one socket connection. binding and rooms are owned by the
// readPump goroutine, which is the only one running handlers.
type Client struct {
	hub  *Hub
	srv  *Server
	conn *websocket.Conn
	id   string

	mu     sync.Mutex
	send   chan []byte
	closed bool

	binding *binding
	rooms   map[string]bool
}

func newClient(srv *Server, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:   srv.hub,
		srv:   srv,
		conn:  conn,
		id:    id,
		send:  make(chan []byte, srv.sendBuffer),
		rooms: make(map[string]bool),
	}
}

// enqueue hands b to the write pump without blocking. It reports false when
// the queue is full or the client is gone.
func (c *Client) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) emit(event string, data any) {
	b, err := EncodeFrame(event, data)
	if err != nil {
		log.Printf("broadcast: encode %s: %v", event, err)
		return
	}
	if !c.enqueue(b) {
		log.Printf("broadcast: client %s: send queue full, closing", c.id)
		_ = c.conn.Close()
	}
}

func (c *Client) emitError(code, message string) {
	errorFrames.WithLabelValues(code).Inc()
	c.emit(EventError, ErrorData{Code: code, Message: message})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeSend()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(c.srv.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("broadcast: client %s: read: %v", c.id, err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(message, &f); err != nil || f.Event == "" {
			c.emitError(CodeInvalidFrame, "frame must be {event, data}")
			continue
		}
		c.srv.dispatch(c, f)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
