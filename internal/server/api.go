package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lox/pokertables/internal/auth"
	"github.com/lox/pokertables/internal/balance"
	"github.com/lox/pokertables/internal/table"
)

type errorResponse struct {
	Error string `json:"error"`
}

type tablesResponse struct {
	Tables []table.Info `json:"tables"`
}

type joinResponse struct {
	Status string `json:"status"`
	Seat   int    `json:"seat"`
	BuyIn  int    `json:"buy_in"`
}

type leaveResponse struct {
	Status   string `json:"status"`
	Returned int    `json:"returned"`
}

type balanceResponse struct {
	Balance int    `json:"balance"`
	Stack   *int   `json:"stack"`
	TableID string `json:"table_id,omitempty"`
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables := s.registry.List(r.URL.Query().Get("level"))
	if tables == nil {
		tables = []table.Info{}
	}
	writeJSON(w, http.StatusOK, tablesResponse{Tables: tables})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r.Context(), r); err != nil {
		writeAuthError(w, err)
		return
	}
	t, err := s.registry.Create(r.URL.Query().Get("level"))
	if err != nil {
		writeTableError(w, err)
		return
	}
	for _, info := range s.registry.List(t.Tier().Level) {
		if info.ID == t.ID() {
			writeJSON(w, http.StatusOK, info)
			return
		}
	}
	writeTableError(w, table.ErrTableNotFound)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r.Context(), r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	q := r.URL.Query()
	buyIn, err := strconv.Atoi(q.Get("buy_in"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "buy_in must be an integer"})
		return
	}
	seat := table.AnySeat
	if v := q.Get("seat"); v != "" {
		if seat, err = strconv.Atoi(v); err != nil || seat < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "seat must be a non-negative integer"})
			return
		}
	}

	seat, err = s.registry.Join(r.Context(), q.Get("table_id"), identity.PlayerID, identity.Username, buyIn, seat)
	if err != nil {
		writeTableError(w, err)
		return
	}
	s.logger.Info("Joined", "table", q.Get("table_id"), "player", identity.PlayerID, "seat", seat, "buy_in", buyIn)
	writeJSON(w, http.StatusOK, joinResponse{Status: "ok", Seat: seat, BuyIn: buyIn})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r.Context(), r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	returned, err := s.registry.Leave(r.Context(), r.URL.Query().Get("table_id"), identity.PlayerID)
	if err != nil {
		writeTableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaveResponse{Status: "ok", Returned: returned})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	seats, err := s.registry.Users(r.PathValue("id"))
	if err != nil {
		writeTableError(w, err)
		return
	}
	users := make([]PlayerInfo, 0, len(seats))
	for _, seat := range seats {
		users = append(users, PlayerInfo{
			UserID:   seat.PlayerID,
			Username: seat.Username,
			Seat:     seat.Index,
			Away:     seat.Away,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	t, ok := s.registry.Get(r.URL.Query().Get("table_id"))
	if !ok {
		writeTableError(w, table.ErrTableNotFound)
		return
	}
	var snap Snapshot
	if err := t.Do(func(sess *table.Session) {
		snap = BuildSnapshot(sess, "")
	}); err != nil {
		writeTableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r.Context(), r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	resp := balanceResponse{}
	if tableID, ok := s.registry.TableOf(identity.PlayerID); ok {
		if stack, ok := s.registry.Stack(identity.PlayerID); ok {
			resp.Stack = &stack
			resp.TableID = tableID
		}
	}

	resp.Balance, err = s.balances.GetBalance(r.Context(), identity.PlayerID)
	if err != nil {
		s.logger.Warn("Balance lookup failed", "player", identity.PlayerID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "balance store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrInvalidToken) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid session"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "auth unavailable"})
}

// statusFor maps registry errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, table.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, table.ErrSeatTaken), errors.Is(err, table.ErrAlreadySeated):
		return http.StatusConflict
	case errors.Is(err, table.ErrUnknownLevel),
		errors.Is(err, table.ErrTableFull),
		errors.Is(err, table.ErrInvalidSeat),
		errors.Is(err, table.ErrBuyInOutOfRange),
		errors.Is(err, table.ErrInsufficientBalance),
		errors.Is(err, table.ErrNotSeated):
		return http.StatusBadRequest
	case errors.Is(err, balance.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeTableError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}
