// Package ws provides the WebSocket transport for delivery pushes.
//
// Each chat client connects with its owner key; the completed handshake
// registers a live handle with the connection registry (which triggers a
// backlog flush), and a disconnect unregisters it. Wire framing here is
// JSON text messages; the delivery queue hands over pre-serialized
// notifications.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/perrymanuk/radbot-sub001/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The assistant fronts a trusted single-user UI; origin checks are
		// delegated to the reverse proxy.
		return true
	},
}

// Server upgrades HTTP requests to WebSocket connections and ties their
// lifecycle to the connection registry.
type Server struct {
	reg *registry.Registry
}

// NewServer creates a WebSocket server over the given registry.
func NewServer(reg *registry.Registry) *Server {
	return &Server{reg: reg}
}

// client is one live WebSocket connection.
type client struct {
	conn      *websocket.Conn
	ownerID   string
	sessionID string

	// writeMu serializes all writes; gorilla connections support a single
	// concurrent writer.
	writeMu sync.Mutex
}

// HandleWebSocket upgrades the request and registers the connection.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		slog.Warn("ws.HandleWebSocket: missing owner", "remote", r.RemoteAddr)
		http.Error(w, "owner required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws.HandleWebSocket: upgrade failed", "ownerID", ownerID, "error", err)
		return
	}

	c := &client{
		conn:      conn,
		ownerID:   ownerID,
		sessionID: uuid.New().String(),
	}
	slog.Info("ws.HandleWebSocket: connection established", "ownerID", ownerID, "sessionID", c.sessionID, "remote", r.RemoteAddr)

	go c.pingLoop()
	go c.readLoop(s.reg)

	// Registration last: the registry's flush hook may push backlog
	// immediately, and the connection must be fully serviceable by then.
	s.reg.Register(&registry.Handle{
		OwnerID:     ownerID,
		SessionID:   c.sessionID,
		Send:        c.write,
		ConnectedAt: time.Now(),
	})
}

// write sends one text message, confirming the transport-level send. The
// delivery queue marks items delivered only when this returns nil.
func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop keeps the connection alive; a failed ping ends the loop and the
// read side tears the connection down.
func (c *client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			slog.Debug("ws.pingLoop: ping failed", "ownerID", c.ownerID, "sessionID", c.sessionID, "error", err)
			return
		}
	}
}

// readLoop drains inbound frames (the delivery transport expects none) and
// unregisters the session when the connection drops.
func (c *client) readLoop(reg *registry.Registry) {
	defer func() {
		reg.Unregister(c.ownerID, c.sessionID)
		c.conn.Close()
		slog.Info("ws.readLoop: connection closed", "ownerID", c.ownerID, "sessionID", c.sessionID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws.readLoop: unexpected close", "ownerID", c.ownerID, "error", err)
			}
			return
		}
	}
}
