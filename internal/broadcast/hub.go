package broadcast

import "context"

// roomMessage is a frame for every member of room except the socket exclude.
type roomMessage struct {
	Room    string `json:"room"`
	Exclude string `json:"exclude,omitempty"`
	Payload []byte `json:"payload"`
}

type membership struct {
	client *Client
	room   string
	done   chan struct{}
}

// Hub owns the connected clients and the room table. All of its maps are
// touched only by the Run goroutine.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	join       chan membership
	leave      chan membership
	broadcast  chan roomMessage

	stopped chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		broadcast:  make(chan roomMessage, 64),
		stopped:    make(chan struct{}),
	}
}

func roomName(sessionID string) string { return "session:" + sessionID }

func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			connectionsOpen.Inc()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case m := <-h.join:
			if h.clients[m.client] {
				members, ok := h.rooms[m.room]
				if !ok {
					members = make(map[*Client]bool)
					h.rooms[m.room] = members
				}
				members[m.client] = true
			}
			close(m.done)

		case m := <-h.leave:
			h.removeFromRoom(m.client, m.room)
			close(m.done)

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.Room] {
				if client.id == msg.Exclude {
					continue
				}
				if !client.enqueue(msg.Payload) {
					h.drop(client)
				}
			}
		}
	}
}

// drop forgets client and closes its connection. Only Run calls it.
func (h *Hub) drop(client *Client) {
	for room := range h.rooms {
		h.removeFromRoom(client, room)
	}
	delete(h.clients, client)
	client.closeSend()
	_ = client.conn.Close()
	connectionsOpen.Dec()
}

func (h *Hub) removeFromRoom(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Join adds client to room and returns once the hub has applied it.
func (h *Hub) Join(client *Client, room string) bool {
	return h.apply(h.join, membership{client: client, room: room, done: make(chan struct{})})
}

// Leave removes client from room and returns once the hub has applied it.
func (h *Hub) Leave(client *Client, room string) bool {
	return h.apply(h.leave, membership{client: client, room: room, done: make(chan struct{})})
}

func (h *Hub) apply(ch chan membership, m membership) bool {
	select {
	case ch <- m:
	case <-h.stopped:
		return false
	}
	select {
	case <-m.done:
		return true
	case <-h.stopped:
		return false
	}
}

// deliver queues msg for local members.
func (h *Hub) deliver(msg roomMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.stopped:
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}
