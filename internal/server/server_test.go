package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/pokertables/internal/auth"
	"github.com/lox/pokertables/internal/balance"
	"github.com/lox/pokertables/internal/config"
	"github.com/lox/pokertables/internal/game"
	"github.com/lox/pokertables/internal/randutil"
	"github.com/lox/pokertables/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	ts       *httptest.Server
	server   *Server
	registry *table.Registry
	store    *balance.MemoryStore
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	for _, fn := range mutate {
		fn(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := log.New(io.Discard)
	store := balance.NewMemoryStore(1000)
	persister := balance.NewPersister(store, logger)
	registry := table.NewRegistry(cfg, store, persister,
		table.WithClock(quartz.NewMock(t)),
		table.WithLogger(logger),
		table.WithRandSource(randutil.Seeded(1)))
	srv := NewServer(registry, auth.NewDevVerifier(),
		balance.Balances{Store: store, Persister: persister},
		WithLogger(logger))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		registry.Close()
	})
	return &testEnv{ts: ts, server: srv, registry: registry, store: store}
}

func (e *testEnv) request(t *testing.T, method, path, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func (e *testEnv) join(t *testing.T, tableID, token string, buyIn int) {
	t.Helper()
	status, body := e.request(t, http.MethodPost, "/api/join?table_id="+tableID+"&buy_in="+strconv.Itoa(buyIn), token)
	require.Equal(t, http.StatusOK, status, "join: %v", body)
}

func (e *testEnv) dial(t *testing.T, tableID, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/game/" + tableID
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readRaw reads the next message as a generic map.
func readRaw(t *testing.T, conn *websocket.Conn) (map[string]any, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m, data
}

// readSnapshot skips notices until the next snapshot arrives.
func readSnapshot(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	for {
		m, data := readRaw(t, conn)
		if _, notice := m["type"]; notice {
			continue
		}
		var snap Snapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		return snap
	}
}

func readNotice(t *testing.T, conn *websocket.Conn) Notice {
	t.Helper()
	for {
		m, data := readRaw(t, conn)
		if _, notice := m["type"]; !notice {
			continue
		}
		var n Notice
		require.NoError(t, json.Unmarshal(data, &n))
		return n
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestServerHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestListTables(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, body := env.request(t, http.MethodGet, "/api/tables?level=2", "")
	require.Equal(t, http.StatusOK, status)
	tables := body["tables"].([]any)
	require.Len(t, tables, 1)
	info := tables[0].(map[string]any)
	assert.Equal(t, "2", info["id"])
	assert.Equal(t, float64(2), info["small_blind"])
	assert.Equal(t, float64(4), info["big_blind"])
	assert.Equal(t, "waiting", info["phase"])

	status, body = env.request(t, http.MethodGet, "/api/tables?level=9", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["tables"])
}

func TestCreateTable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, _ := env.request(t, http.MethodPost, "/api/create?level=1", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := env.request(t, http.MethodPost, "/api/create?level=3", "u1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4", body["id"])
	assert.Equal(t, float64(10), body["big_blind"])

	status, _ = env.request(t, http.MethodPost, "/api/create?level=42", "u1")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestJoinEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SetBalance(ctx, "u1", 5))
	require.NoError(t, env.store.SetBalance(ctx, "u2", 10))

	tests := []struct {
		name   string
		token  string
		query  string
		status int
	}{
		{"no session", "", "table_id=1&buy_in=5", http.StatusUnauthorized},
		{"below minimum", "u1", "table_id=1&buy_in=2", http.StatusBadRequest},
		{"above wallet", "u1", "table_id=1&buy_in=6", http.StatusBadRequest},
		{"not a number", "u1", "table_id=1&buy_in=lots", http.StatusBadRequest},
		{"unknown table", "u1", "table_id=77&buy_in=5", http.StatusNotFound},
		{"ok", "u2", "table_id=1&buy_in=5&seat=2", http.StatusOK},
		{"already seated", "u2", "table_id=1&buy_in=5", http.StatusConflict},
		{"seat taken", "u1", "table_id=1&buy_in=4&seat=2", http.StatusConflict},
		{"bad seat", "u1", "table_id=1&buy_in=4&seat=-3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		status, body := env.request(t, http.MethodPost, "/api/join?"+tt.query, tt.token)
		assert.Equal(t, tt.status, status, "%s: %v", tt.name, body)
		if tt.status == http.StatusOK {
			assert.Equal(t, "ok", body["status"])
			assert.Equal(t, float64(5), body["buy_in"])
			assert.Equal(t, float64(2), body["seat"])
		}
	}

	status, body := env.request(t, http.MethodGet, "/api/tables/1/users", "")
	require.Equal(t, http.StatusOK, status)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "u2", users[0].(map[string]any)["user_id"])
}

func TestLeaveAndBalance(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, body := env.request(t, http.MethodGet, "/api/balance", "p1:alice")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1000), body["balance"])
	assert.Nil(t, body["stack"])

	env.join(t, "1", "p1:alice", 60)
	status, body = env.request(t, http.MethodGet, "/api/balance", "p1:alice")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(60), body["stack"])
	assert.Equal(t, "1", body["table_id"])

	status, body = env.request(t, http.MethodPost, "/api/leave?table_id=1", "p1:alice")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(60), body["returned"])

	status, _ = env.request(t, http.MethodPost, "/api/leave?table_id=1", "p1:alice")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.request(t, http.MethodGet, "/api/balance", "p1:alice")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1000), body["balance"])
	assert.Nil(t, body["stack"])
}

func TestSnapshotRedaction(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.join(t, "1", "p1:alice", 100)
	env.join(t, "1", "p2:bob", 100)

	p1 := env.dial(t, "1", "p1:alice")
	spectator := env.dial(t, "1", "")

	snap := readSnapshot(t, p1)
	assert.Equal(t, "1", snap.TableID)
	assert.Equal(t, game.PhasePreFlop, snap.Phase)
	assert.True(t, snap.Started)
	assert.Equal(t, 2, snap.PlayersCount)
	assert.Equal(t, 3, snap.Pot)
	assert.Equal(t, 2, snap.CurrentBet)
	assert.Equal(t, map[string]int{"p1": 99, "p2": 98}, snap.Stacks)
	assert.Equal(t, map[string]string{"p1": "alice", "p2": "bob"}, snap.Usernames)
	require.NotNil(t, snap.CurrentPlayer)
	assert.Equal(t, "p1", *snap.CurrentPlayer)
	require.NotNil(t, snap.TimerDeadline)
	require.Len(t, snap.Seats, 6)
	require.NotNil(t, snap.Seats[0])
	assert.Equal(t, "p1", *snap.Seats[0])
	assert.Nil(t, snap.Seats[2])
	require.Len(t, snap.HoleCards, 1)
	assert.Len(t, snap.HoleCards["p1"], 2)
	assert.Empty(t, snap.RevealedHands)
	assert.Nil(t, snap.Winner)

	watching := readSnapshot(t, spectator)
	assert.Empty(t, watching.HoleCards)
	assert.Equal(t, 3, watching.Pot)

	status, body := env.request(t, http.MethodGet, "/api/game_state?table_id=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["hole_cards"])
	assert.Equal(t, "pre-flop", body["phase"])
}

func TestActionBroadcast(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.join(t, "1", "p1", 100)
	env.join(t, "1", "p2", 100)

	p1 := env.dial(t, "1", "p1")
	p2 := env.dial(t, "1", "p2")
	readSnapshot(t, p1)
	readSnapshot(t, p2)

	send(t, p1, ClientMessage{UserID: "p1", Action: "call"})

	for _, conn := range []*websocket.Conn{p1, p2} {
		snap := readSnapshot(t, conn)
		assert.Equal(t, game.PhaseFlop, snap.Phase)
		assert.Len(t, snap.Community, 3)
		assert.Equal(t, 4, snap.Pot)
		assert.Equal(t, 0, snap.CurrentBet)
		require.NotNil(t, snap.CurrentPlayer)
		assert.Equal(t, "p2", *snap.CurrentPlayer)
	}

	// p2 folds; both see the result with p1 as winner.
	send(t, p2, ClientMessage{UserID: "p2", Action: "fold"})
	snap := readSnapshot(t, p1)
	assert.Equal(t, game.PhaseResult, snap.Phase)
	assert.Equal(t, "p1", snap.Winner)
	assert.Equal(t, "fold", snap.ResultReason)
	assert.Equal(t, map[string]int{"p1": 4}, snap.SplitPots)
	assert.Equal(t, 102, snap.Stacks["p1"])
}

func TestIgnoredActionsAreEchoedToSenderOnly(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.join(t, "1", "p1", 100)
	env.join(t, "1", "p2", 100)

	p1 := env.dial(t, "1", "p1")
	p2 := env.dial(t, "1", "p2")
	readSnapshot(t, p1)
	readSnapshot(t, p2)

	send(t, p2, ClientMessage{UserID: "p2", Action: "call"})
	assert.Equal(t, Notice{Type: NoticeIgnored, Reason: "not your turn"}, readNotice(t, p2))

	send(t, p2, ClientMessage{UserID: "p1", Action: "fold"})
	assert.Equal(t, Notice{Type: NoticeIgnored, Reason: "user_id does not match session"}, readNotice(t, p2))

	send(t, p2, ClientMessage{Action: "shove"})
	assert.Equal(t, NoticeError, readNotice(t, p2).Type)

	// p1 saw none of that; its next message is the result of a real action.
	send(t, p1, ClientMessage{UserID: "p1", Action: "check"})
	assert.Equal(t, Notice{Type: NoticeIgnored, Reason: "cannot check facing a bet"}, readNotice(t, p1))
	send(t, p1, ClientMessage{UserID: "p1", Action: "raise", Amount: 6})
	snap := readSnapshot(t, p1)
	assert.Equal(t, 6, snap.CurrentBet)
	assert.Equal(t, 8, snap.Pot)
}

func TestSyncAndSpectators(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.join(t, "1", "p1", 100)
	env.join(t, "1", "p2", 100)

	spectator := env.dial(t, "1", "")
	readSnapshot(t, spectator)

	send(t, spectator, ClientMessage{Action: ActionSync})
	snap := readSnapshot(t, spectator)
	assert.Equal(t, game.PhasePreFlop, snap.Phase)

	send(t, spectator, ClientMessage{UserID: "p1", Action: "fold"})
	assert.Equal(t, Notice{Type: NoticeIgnored, Reason: "spectators cannot act"}, readNotice(t, spectator))
}

func TestHubBroadcastSendsEachViewerItsOwnSnapshot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.join(t, "1", "p1", 100)
	env.join(t, "1", "p2", 100)

	p1 := env.dial(t, "1", "p1")
	p2 := env.dial(t, "1", "p2")
	spectator := env.dial(t, "1", "")
	for _, conn := range []*websocket.Conn{p1, p2, spectator} {
		readSnapshot(t, conn)
	}

	tbl, ok := env.registry.Get("1")
	require.True(t, ok)
	env.server.Hub().Broadcast(tbl)

	for id, conn := range map[string]*websocket.Conn{"p1": p1, "p2": p2} {
		snap := readSnapshot(t, conn)
		assert.Equal(t, game.PhasePreFlop, snap.Phase, id)
		require.Len(t, snap.HoleCards, 1, id)
		assert.Len(t, snap.HoleCards[id], 2, id)
	}
	watching := readSnapshot(t, spectator)
	assert.Empty(t, watching.HoleCards)
	assert.Equal(t, 3, watching.Pot)
}

func TestDisconnectKeepsSeatAndCards(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.join(t, "1", "p1", 100)
	env.join(t, "1", "p2", 100)

	p1 := env.dial(t, "1", "p1")
	first := readSnapshot(t, p1)
	require.NoError(t, p1.Close())

	require.Eventually(t, func() bool {
		_, body := env.request(t, http.MethodGet, "/api/tables/1/users", "")
		for _, u := range body["users"].([]any) {
			user := u.(map[string]any)
			if user["user_id"] == "p1" {
				return user["away"] == true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	again := env.dial(t, "1", "p1")
	snap := readSnapshot(t, again)
	assert.Equal(t, game.PhasePreFlop, snap.Phase)
	assert.Equal(t, first.HoleCards["p1"], snap.HoleCards["p1"], "reconnect sees the same cards")
	require.NotNil(t, snap.CurrentPlayer)
	assert.Equal(t, "p1", *snap.CurrentPlayer, "disconnect does not fold")
}

func TestConnectionLimitClosesWithTryAgainLater(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) {
		c.Tiers[0].MaxSeats = 2
		c.Tiers[0].MaxConnections = 2
	})

	readSnapshot(t, env.dial(t, "1", ""))
	readSnapshot(t, env.dial(t, "1", ""))

	third := env.dial(t, "1", "")
	require.NoError(t, third.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := third.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestWebSocketAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	base := "ws" + strings.TrimPrefix(env.ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/game/1?token=:nobody", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"/ws/game/999", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
