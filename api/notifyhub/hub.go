package notifyhub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cabinet/tool"
	"cabinet/types"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 32
)

// client is one registered WebSocket connection. All writes go through the
// send channel and a single pump goroutine; gorilla/websocket allows at most
// one concurrent writer per connection.
type client struct {
	owner string
	send  chan []byte
}

// Hub holds WebSocket connections and broadcasts change events to every
// client of the owning principal. Emit never blocks: a client whose buffer
// is full loses the event, and a client that stops reading is dropped by its
// pump when the write deadline expires.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*client
}

// New creates a new event hub.
func New() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]*client),
	}
}

// Register adds a WebSocket connection scoped to one owner and starts its
// write pump.
func (h *Hub) Register(conn *websocket.Conn, owner string) {
	cl := &client{owner: owner, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.conns[conn] = cl
	h.mu.Unlock()
	go h.writePump(conn, cl)
}

// Unregister removes a WebSocket connection from the hub. Safe to call more
// than once; the send channel is closed exactly once, under the lock, so no
// Emit can be mid-send on it.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cl, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		close(cl.send)
	}
}

// writePump drains one client's send channel onto the wire. A write that
// misses the deadline drops the connection.
func (h *Hub) writePump(conn *websocket.Conn, cl *client) {
	for payload := range cl.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			tool.DefaultLogger.Warnf("[Events] Dropping client of %s: %v", cl.owner, err)
			h.Unregister(conn)
			conn.Close()
			for range cl.send { // drain until Unregister's close
			}
			return
		}
	}
}

// Emit queues the event as JSON for every connection belonging to the
// event's owner. Implements types.EventSink; it must not block, so a client
// with a full buffer misses the event instead of stalling the caller.
func (h *Hub) Emit(event *types.ChangeEvent) {
	if event == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.conns {
		if cl.owner != event.Owner {
			continue
		}
		select {
		case cl.send <- payload:
		default:
		}
	}
}

var _ types.EventSink = (*Hub)(nil)
