package resync

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// link is one physical socket with its outbound queue. Only writePump writes
// data frames, so callers never wait on the network.
type link struct {
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newLink(conn *websocket.Conn, buffer int) *link {
	l := &link{
		conn: conn,
		send: make(chan []byte, buffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.writePump()
	return l
}

// enqueue reports false when the queue is full.
func (l *link) enqueue(b []byte) bool {
	select {
	case l.send <- b:
		return true
	default:
		return false
	}
}

func (l *link) writePump() {
	defer close(l.done)
	for {
		select {
		case b := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = l.conn.Close()
				return
			}
		case <-l.quit:
			l.flush()
			return
		}
	}
}

// flush writes what is still queued under a single deadline.
func (l *link) flush() {
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case b := <-l.send:
			if err := l.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		default:
			return
		}
	}
}

// stop ends writePump, flushing the queue first, and waits for it.
func (l *link) stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
