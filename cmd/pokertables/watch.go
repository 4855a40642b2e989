package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/lox/pokertables/internal/server"
)

// WatchCmd follows one table and prints every snapshot. With a token it
// also reads actions from stdin, one per line ("call", "raise 40").
type WatchCmd struct {
	URL   string `required:"" help:"Table channel, e.g. ws://localhost:8080/ws/game/1"`
	Token string `help:"Session token; without one the table is watched as a spectator"`
	Debug bool   `help:"Print raw messages"`
}

func (c *WatchCmd) Run() error {
	logger := newLogger("info")
	if c.Debug {
		logger = newLogger("debug")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	defer conn.Close()

	ctx := setupSignalHandler(logger)
	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	if c.Token != "" {
		go c.readActions(conn)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("connection closed: %w", err)
		}
		logger.Debug("Message", "raw", string(data))

		out, err := render(data)
		if err != nil {
			logger.Warn("Unreadable message", "error", err)
			continue
		}
		fmt.Print(out)
	}
}

// render formats one server message, which is either a notice or a snapshot.
func render(data []byte) (string, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", err
	}
	if probe.Type != "" {
		var n server.Notice
		if err := json.Unmarshal(data, &n); err != nil {
			return "", err
		}
		return formatNotice(n) + "\n", nil
	}

	var s server.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	return formatSnapshot(s) + "\n", nil
}

func (c *WatchCmd) readActions(conn *websocket.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		msg, ok := parseActionLine(scanner.Text())
		if !ok {
			fmt.Fprintln(os.Stderr, "usage: fold | check | call | bet N | raise N | sync")
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func parseActionLine(line string) (server.ClientMessage, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 2 {
		return server.ClientMessage{}, false
	}
	msg := server.ClientMessage{Action: strings.ToLower(fields[0])}
	if len(fields) == 2 {
		amount, err := strconv.Atoi(fields[1])
		if err != nil || amount <= 0 {
			return server.ClientMessage{}, false
		}
		msg.Amount = amount
	}
	return msg, true
}
