// Package server exposes the tables over HTTP: a websocket channel per
// table for live play and a small JSON API for seating and lookups.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/pokertables/internal/auth"
	"github.com/lox/pokertables/internal/balance"
	"github.com/lox/pokertables/internal/table"
)

// Server serves the live table channels and the HTTP API.
type Server struct {
	registry *table.Registry
	verifier auth.Verifier
	balances balance.Balances
	hub      *Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu    sync.Mutex
	conns map[*Connection]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithEchoIgnored controls whether rejected actions are echoed back.
func WithEchoIgnored(echo bool) Option {
	return func(s *Server) { s.hub.echoIgnored = echo }
}

// NewServer creates a server over registry. Balances are read through the
// persistence queue so a queued write is never shadowed by a stale store.
func NewServer(registry *table.Registry, verifier auth.Verifier, balances balance.Balances, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		verifier: verifier,
		balances: balances,
		logger:   log.Default(),
		upgrader: websocket.Upgrader{
			// Clients are embedded web apps served from other origins.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		mux:   http.NewServeMux(),
		conns: make(map[*Connection]struct{}),
	}
	s.hub = NewHub(s.logger, true)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPrefix("server")
	s.hub.logger = s.logger.WithPrefix("hub")
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws/game/{id}", s.handleWebSocket)
	s.mux.HandleFunc("GET /api/tables", s.handleListTables)
	s.mux.HandleFunc("POST /api/create", s.handleCreate)
	s.mux.HandleFunc("POST /api/join", s.handleJoin)
	s.mux.HandleFunc("POST /api/leave", s.handleLeave)
	s.mux.HandleFunc("GET /api/tables/{id}/users", s.handleUsers)
	s.mux.HandleFunc("GET /api/game_state", s.handleGameState)
	s.mux.HandleFunc("GET /api/balance", s.handleBalance)
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close drops every live connection.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}

// handleWebSocket attaches a client to a table. A token is optional;
// without one the client watches as a spectator.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")
	t, ok := s.registry.Get(tableID)
	if !ok {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}

	var identity *auth.Identity
	if token := tokenFrom(r); token != "" {
		id, err := s.verifier.VerifySession(r.Context(), token)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		identity = id
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	c := newConnection(conn, identity, t, s.hub, s.logger)
	if err := s.hub.Register(t, c); err != nil {
		code := websocket.CloseInternalServerErr
		switch {
		case errors.Is(err, table.ErrTooManyConnections):
			code = websocket.CloseTryAgainLater
		case errors.Is(err, table.ErrTableNotFound):
			code = websocket.ClosePolicyViolation
		}
		s.logger.Info("Connection refused", "table", tableID, "player", c.PlayerID(), "reason", err)
		reject(conn, code, err.Error())
		return
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	go func() {
		<-c.Done()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	c.start()
}

// authenticate resolves the request's session token.
func (s *Server) authenticate(ctx context.Context, r *http.Request) (*auth.Identity, error) {
	token := tokenFrom(r)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return s.verifier.VerifySession(ctx, token)
}

func tokenFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); h != "" {
		for _, scheme := range []string{"Bearer ", "tma "} {
			if token, ok := strings.CutPrefix(h, scheme); ok {
				return strings.TrimSpace(token)
			}
		}
	}
	return ""
}
