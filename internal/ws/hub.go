// Package ws pushes realtime events (new messages, matches, typing, read
// receipts) to connected clients over WebSocket. One hub serves the process;
// clients are keyed by user id and a user may hold several connections.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/jodi-app/jodi-server/internal/logger"
)

// Event types sent to clients.
const (
	EventConnected    = "connected"
	EventNewMessage   = "new_message"
	EventMatchCreated = "match_created"
	EventTyping       = "typing"
	EventReadReceipt  = "read_receipt"
	EventNotification = "notification"
)

// Envelope is the wire format for every event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub tracks connected clients and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool // userID -> connections

	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes connect/disconnect events until the process exits. Start it
// once in main.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()
			logger.Debug("ws client connected", "user_id", client.userID)
			client.Send(Envelope{Type: EventConnected})

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok {
				if conns[client] {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			h.mu.Unlock()
			logger.Debug("ws client disconnected", "user_id", client.userID)
		}
	}
}

// SendToUser delivers an event to every connection a user holds. Returns
// false when the user is offline so callers can fall back to push.
func (h *Hub) SendToUser(userID string, envelope Envelope) bool {
	raw, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("ws envelope marshal failed", "type", envelope.Type, "error", err)
		return false
	}

	h.mu.RLock()
	conns := h.clients[userID]
	targets := make([]*Client, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return false
	}
	for _, c := range targets {
		c.sendRaw(raw)
	}
	return true
}

// IsOnline reports whether a user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}
