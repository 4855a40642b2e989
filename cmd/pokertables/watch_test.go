package main

import (
	"encoding/json"
	"testing"

	"github.com/lox/pokertables/internal/game"
	"github.com/lox/pokertables/internal/server"
	"github.com/lox/pokertables/poker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionLine(t *testing.T) {
	tests := []struct {
		line string
		want server.ClientMessage
		ok   bool
	}{
		{"call", server.ClientMessage{Action: "call"}, true},
		{"  Raise 40 ", server.ClientMessage{Action: "raise", Amount: 40}, true},
		{"sync", server.ClientMessage{Action: "sync"}, true},
		{"bet lots", server.ClientMessage{}, false},
		{"bet -5", server.ClientMessage{}, false},
		{"", server.ClientMessage{}, false},
		{"raise 4 now", server.ClientMessage{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseActionLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderNotice(t *testing.T) {
	out, err := render([]byte(`{"type":"ignored","reason":"not your turn"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "[ignored] not your turn")
}

func TestRenderSnapshot(t *testing.T) {
	alice, bob := "p1", "p2"
	snap := server.Snapshot{
		TableID: "3",
		Phase:   game.PhaseResult,
		Players: []server.PlayerInfo{
			{UserID: "p1", Username: "alice", Seat: 0},
			{UserID: "p2", Username: "bob", Seat: 1, Away: true},
		},
		Seats:         []*string{&alice, &bob},
		Usernames:     map[string]string{"p1": "alice", "p2": "bob"},
		Community:     poker.MustParseCards("Ah", "Kd", "2c"),
		Pot:           40,
		Stacks:        map[string]int{"p1": 140, "p2": 60},
		Contributions: map[string]int{},
		HoleCards:     map[string][]poker.Card{"p1": poker.MustParseCards("As", "Ac")},
		SplitPots:     map[string]int{"p1": 40},
		ResultReason:  "fold",
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	out, err := render(data)
	require.NoError(t, err)
	assert.Contains(t, out, "table 3")
	assert.Contains(t, out, "result")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "stack 140")
	assert.Contains(t, out, "away")
	assert.Contains(t, out, "alice +40 (fold)")
}
