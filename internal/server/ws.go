package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/paperbeat/internal/dispatch"
	"github.com/ayusman/paperbeat/internal/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Live feed tuning
const (
	hubSubscriber   = "ws"
	hubBuffer       = 256
	clientBuffer    = 64
	writeWait       = 5 * time.Second
	pingInterval    = 30 * time.Second
	maxClientMsgLen = 512
)

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NotesHub broadcasts every NoteEvent published on the bus to the WebSocket
// clients of /api/notes/live. A client that cannot keep up loses messages
// instead of slowing the others.
type NotesHub struct {
	bus     *dispatch.Bus
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	closed  bool
	dropped atomic.Uint64
	done    chan struct{}
	log     *slog.Logger
}

// NewNotesHub subscribes to bus and starts broadcasting.
func NewNotesHub(bus *dispatch.Bus) (*NotesHub, error) {
	events, err := bus.Subscribe(hubSubscriber, hubBuffer)
	if err != nil {
		return nil, err
	}

	h := &NotesHub{
		bus:     bus,
		clients: make(map[*hubClient]struct{}),
		done:    make(chan struct{}),
		log:     log.For("notes-hub"),
	}
	go h.run(events)
	return h, nil
}

func (h *NotesHub) run(events <-chan dispatch.NoteEvent) {
	defer close(h.done)

	for ev := range events {
		msg, err := json.Marshal(ev)
		if err != nil {
			continue
		}

		h.mu.RLock()
		for c := range h.clients {
			select {
			case c.send <- msg:
			default:
				h.dropped.Add(1)
			}
		}
		h.mu.RUnlock()
	}

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams notes until either side
// closes. Messages from the client are ignored.
func (h *NotesHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &hubClient{conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return
	}
	defer h.unregister(c)

	go c.writePump()

	conn.SetReadLimit(maxClientMsgLen)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *NotesHub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *NotesHub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump owns all writes to the connection.
func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *NotesHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages slow clients missed.
func (h *NotesHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close unsubscribes from the bus and disconnects every client. It is safe
// to call after the bus itself was closed.
func (h *NotesHub) Close() {
	h.bus.Unsubscribe(hubSubscriber)
	<-h.done
}
