package server

import (
	"encoding/json"
	"fmt"

	"github.com/lox/pokertables/internal/game"
)

// ActionSync asks for a fresh snapshot without changing the table.
const ActionSync = "sync"

// ClientMessage is what a client sends on the table channel.
type ClientMessage struct {
	UserID string `json:"user_id,omitempty"`
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
}

// NoticeType tags server messages that are not snapshots.
type NoticeType string

const (
	NoticeIgnored NoticeType = "ignored"
	NoticeError   NoticeType = "error"
)

// Notice is sent to a single connection, never broadcast.
type Notice struct {
	Type   NoticeType `json:"type"`
	Reason string     `json:"reason"`
}

// decodeClientMessage parses raw and converts the action into its typed form.
// A sync request yields a nil action.
func decodeClientMessage(raw []byte) (ClientMessage, game.Action, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, nil, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Action == ActionSync {
		return msg, nil, nil
	}
	action, err := game.ParseAction(msg.Action, msg.Amount)
	if err != nil {
		return msg, nil, err
	}
	return msg, action, nil
}
