package server

import (
	"github.com/charmbracelet/log"
	"github.com/lox/pokertables/internal/table"
)

// Hub attaches connections to tables and routes their messages into the
// table. All connection bookkeeping happens inside Table.Do, so it is
// serialized with the game itself.
type Hub struct {
	logger      *log.Logger
	echoIgnored bool
}

// NewHub creates a hub. When echoIgnored is set, a rejected action is
// answered with an "ignored" notice to its sender.
func NewHub(logger *log.Logger, echoIgnored bool) *Hub {
	return &Hub{logger: logger.WithPrefix("hub"), echoIgnored: echoIgnored}
}

// Register attaches c to t and sends it a full snapshot.
func (h *Hub) Register(t *table.Table, c *Connection) error {
	var watchErr error
	if err := t.Do(func(s *table.Session) {
		watchErr = s.Watch(c)
	}); err != nil {
		return err
	}
	if watchErr != nil {
		return watchErr
	}
	h.logger.Info("Client connected", "table", t.ID(), "player", c.PlayerID(), "conn", c.id)
	return nil
}

// Unregister detaches c from t. A player whose last connection goes is
// marked away but keeps their seat and cards.
func (h *Hub) Unregister(t *table.Table, c *Connection) {
	_ = t.Do(func(s *table.Session) {
		s.Unwatch(c)
	})
	h.logger.Info("Client disconnected", "table", t.ID(), "player", c.PlayerID(), "conn", c.id)
}

// Broadcast sends every connection at t its own view of the table.
func (h *Hub) Broadcast(t *table.Table) {
	_ = t.Do(func(s *table.Session) {
		s.Broadcast()
	})
}

func (h *Hub) handleMessage(c *Connection, raw []byte) {
	msg, action, err := decodeClientMessage(raw)
	if err != nil {
		c.logger.Debug("Bad message", "error", err)
		c.sendJSON(Notice{Type: NoticeError, Reason: err.Error()})
		return
	}

	err = c.table.Do(func(s *table.Session) {
		if action == nil {
			c.Notify(s)
			return
		}

		playerID := c.PlayerID()
		switch {
		case playerID == "":
			h.ignored(c, "spectators cannot act")
			return
		case msg.UserID != "" && msg.UserID != playerID:
			c.logger.Warn("Action for another player", "user_id", msg.UserID)
			h.ignored(c, "user_id does not match session")
			return
		}

		out := s.Act(playerID, action)
		if !out.Accepted {
			h.ignored(c, out.Reason)
		}
	})
	if err != nil {
		c.sendJSON(Notice{Type: NoticeError, Reason: err.Error()})
		c.Close()
	}
}

func (h *Hub) ignored(c *Connection, reason string) {
	if h.echoIgnored {
		c.sendJSON(Notice{Type: NoticeIgnored, Reason: reason})
	}
}
