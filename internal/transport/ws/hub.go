// Package ws serves the realtime rooms: every socket joins the room named by
// its projectId and each message is relayed to the other sockets of that room.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvgen/internal/metrics"
)

const (
	// DefaultRoom is joined when the request carries no projectId.
	DefaultRoom = "default"

	sendBuffer     = 16
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

type message struct {
	kind int
	data []byte
}

type client struct {
	conn *websocket.Conn
	room string
	send chan message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks open sockets by room.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and keeps the socket in its room until it disconnects.
// Plain HTTP requests get 426.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "Expected WebSocket", http.StatusUpgradeRequired)
		return
	}

	room := r.URL.Query().Get("projectId")
	if room == "" {
		room = DefaultRoom
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, room: room, send: make(chan message, sendBuffer)}
	if !h.join(c) {
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// RoomSize returns the number of sockets in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Close disconnects every socket and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for room, clients := range h.rooms {
		for c := range clients {
			c.close()
		}
		metrics.RealtimeConnections.Sub(float64(len(clients)))
		delete(h.rooms, room)
	}
}

func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	clients, ok := h.rooms[c.room]
	if !ok {
		clients = make(map[*client]struct{})
		h.rooms[c.room] = clients
	}
	clients[c] = struct{}{}
	metrics.RealtimeConnections.Inc()
	return true
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
	c.close()
	metrics.RealtimeConnections.Dec()
}

// broadcast relays msg to every other socket of the sender's room.
// A peer whose buffer is full is disconnected rather than blocking the room.
func (h *Hub) broadcast(from *client, msg message) {
	h.mu.Lock()
	var slow []*client
	for c := range h.rooms[from.room] {
		if c == from {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow WebSocket peer", zap.String("room", c.room))
		h.leave(c)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.leave(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Info("WebSocket closed", zap.String("room", c.room), zap.Error(err))
			}
			return
		}
		h.broadcast(c, message{kind: kind, data: data})
	}
}

func (h *Hub) writePump(c *client) {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}
