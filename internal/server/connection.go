package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/pokertables/internal/auth"
	"github.com/lox/pokertables/internal/table"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	sendBuffer = 64
)

// Connection is one websocket attached to a table. It is bound to the
// identity verified at upgrade time, or to none for a spectator.
type Connection struct {
	id       string
	conn     *websocket.Conn
	identity *auth.Identity
	table    *table.Table
	hub      *Hub
	logger   *log.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
	done   chan struct{}
}

func newConnection(conn *websocket.Conn, identity *auth.Identity, t *table.Table, hub *Hub, logger *log.Logger) *Connection {
	c := &Connection{
		id:       uuid.NewString(),
		conn:     conn,
		identity: identity,
		table:    t,
		hub:      hub,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	c.logger = logger.WithPrefix("conn").With("conn", c.id[:8], "table", t.ID(), "player", c.PlayerID())
	return c
}

// PlayerID returns the bound player, or "" for a spectator.
func (c *Connection) PlayerID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.PlayerID
}

// Notify queues this connection's view of the table. It runs under the
// table lock, so a client that cannot keep up is dropped instead of
// waited on.
func (c *Connection) Notify(s *table.Session) {
	c.sendJSON(BuildSnapshot(s, c.PlayerID()))
}

func (c *Connection) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		c.closeLocked()
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Connection) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

// readPump handles incoming messages until the peer goes away, then
// detaches the connection from its table.
func (c *Connection) readPump() {
	defer func() {
		c.hub.Unregister(c.table, c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		c.hub.handleMessage(c, raw)

		select {
		case <-c.done:
			return
		default:
		}
	}
}

// writePump drains the send buffer and keeps the peer alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
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

// reject closes a connection that was upgraded but could not be attached.
func reject(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
