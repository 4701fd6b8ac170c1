// Package live pushes trade notifications to participants watching an
// order over a websocket.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

const writeWait = 5 * time.Second

// Event is one frame sent to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// conn serializes writes; gorilla connections allow one writer at a time.
type conn struct {
	ws     *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *conn) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps one room per order. It is a marketplace.Notifier: a
// notification about an order reaches the recipient's sockets in that
// order's room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*conn]struct{}
	log   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{rooms: make(map[string]map[*conn]struct{}), log: logger}
}

func (h *Hub) join(orderID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[*conn]struct{})
		h.rooms[orderID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) leave(orderID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[orderID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, orderID)
	}
}

// members snapshots a room so writes happen without holding the hub lock.
func (h *Hub) members(orderID string) []*conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*conn, 0, len(h.rooms[orderID]))
	for c := range h.rooms[orderID] {
		out = append(out, c)
	}
	return out
}

// Watchers reports how many sockets are open on an order.
func (h *Hub) Watchers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}

// broadcast sends evt to the room, or only to userID's sockets when set.
func (h *Hub) broadcast(orderID, userID string, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn("live event encode failed", "type", evt.Type, "error", err)
		return
	}
	for _, c := range h.members(orderID) {
		if userID != "" && c.userID != userID {
			continue
		}
		if err := c.write(payload); err != nil {
			h.log.Debug("live write failed", "order_id", orderID, "user_id", c.userID, "error", err)
		}
	}
}

func (h *Hub) Notify(_ context.Context, n marketplace.Notification) error {
	if n.OrderID == "" {
		return nil
	}
	h.broadcast(n.OrderID, n.UserID, Event{Type: n.Kind, Data: n})
	return nil
}
