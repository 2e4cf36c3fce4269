package chatserver

import (
	"sync"

	"art-chat/internal/channel"
)

// client is one live channel session.
type client struct {
	userID int64
	send   chan channel.Frame
}

// Hub tracks which users currently hold an open channel and delivers
// frames to them. A user reconnecting replaces their previous session.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]*client)}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if old, ok := h.clients[c.userID]; ok {
		close(old.send)
	}
	h.clients[c.userID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if current, ok := h.clients[c.userID]; ok && current == c {
		close(current.send)
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
}

// Deliver queues a frame for the user's live session. Offline users or a
// full buffer drop the frame; clients resynchronize via the history fetch.
func (h *Hub) Deliver(userID int64, frame channel.Frame) bool {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Online reports whether the user has a live session.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
