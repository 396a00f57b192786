package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jodi-app/jodi-server/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens in middleware before the upgrade; cross-origin browser
	// clients are expected.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// InboundHandler receives client-sent envelopes (typing indicators and the
// like) for routing.
type InboundHandler func(userID string, envelope Envelope)

// Serve upgrades the request and starts the read/write pumps. The caller's
// auth middleware must have resolved userID already.
func (h *Hub) Serve(c *gin.Context, userID string, inbound InboundHandler) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
	h.register <- client

	go client.writePump()
	go client.readPump(inbound)
}

// Send marshals and queues an envelope on this connection.
func (c *Client) Send(envelope Envelope) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	c.sendRaw(raw)
}

// sendRaw queues bytes, dropping the event when the client's buffer is full
// rather than blocking the hub.
func (c *Client) sendRaw(raw []byte) {
	select {
	case c.send <- raw:
	default:
		logger.Warn("ws send buffer full, dropping event", "user_id", c.userID)
	}
}

func (c *Client) readPump(inbound InboundHandler) {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read error", "user_id", c.userID, "error", err)
			}
			return
		}
		if inbound == nil {
			continue
		}
		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		inbound(c.userID, envelope)
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
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
