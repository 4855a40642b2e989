package server

import (
	"github.com/lox/pokertables/internal/game"
	"github.com/lox/pokertables/internal/table"
	"github.com/lox/pokertables/poker"
)

// PlayerInfo describes one seated player.
type PlayerInfo struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Seat     int    `json:"seat"`
	Away     bool   `json:"away,omitempty"`
}

// Snapshot is the table state as one viewer may see it. Hole cards of
// other players are only present once hands are revealed at showdown.
type Snapshot struct {
	TableID       string                  `json:"table_id"`
	Phase         game.Phase              `json:"phase"`
	Started       bool                    `json:"started"`
	Players       []PlayerInfo            `json:"players"`
	PlayersCount  int                     `json:"players_count"`
	Seats         []*string               `json:"seats"`
	Usernames     map[string]string       `json:"usernames"`
	Dealer        int                     `json:"dealer"`
	SmallBlind    int                     `json:"small_blind"`
	BigBlind      int                     `json:"big_blind"`
	InstanceID    uint64                  `json:"instance_id"`
	Community     []poker.Card            `json:"community"`
	CurrentPlayer *string                 `json:"current_player"`
	Pot           int                     `json:"pot"`
	CurrentBet    int                     `json:"current_bet"`
	Contributions map[string]int          `json:"contributions"`
	Stacks        map[string]int          `json:"stacks"`
	HoleCards     map[string][]poker.Card `json:"hole_cards"`
	TimerDeadline *int64                  `json:"timer_deadline"`
	Winner        any                     `json:"winner"`
	ResultReason  string                  `json:"result_reason,omitempty"`
	RevealedHands map[string][]poker.Card `json:"revealed_hands"`
	HandRanks     map[string]string       `json:"hand_ranks,omitempty"`
	SplitPots     map[string]int          `json:"split_pots"`
	Pots          []game.Pot              `json:"pots,omitempty"`
}

// BuildSnapshot renders the table for viewer, a player id or "" for a
// spectator. Callers hold the table lock.
func BuildSnapshot(s *table.Session, viewer string) Snapshot {
	st := s.State()
	tier := s.Tier()

	snap := Snapshot{
		TableID:       s.ID(),
		Phase:         st.Phase,
		Started:       st.Phase != game.PhaseWaiting,
		Players:       []PlayerInfo{},
		Seats:         make([]*string, len(st.Seats)),
		Usernames:     make(map[string]string),
		Dealer:        st.DealerIndex,
		SmallBlind:    tier.SmallBlind,
		BigBlind:      tier.BigBlind,
		InstanceID:    st.InstanceID,
		Community:     append([]poker.Card{}, st.Community...),
		Pot:           st.Pot,
		CurrentBet:    st.CurrentBet,
		Contributions: make(map[string]int),
		Stacks:        make(map[string]int),
		HoleCards:     make(map[string][]poker.Card),
		RevealedHands: make(map[string][]poker.Card),
		SplitPots:     make(map[string]int),
	}

	for _, seat := range st.Seats {
		if !seat.Occupied() {
			continue
		}
		id := seat.PlayerID
		snap.Players = append(snap.Players, PlayerInfo{
			UserID:   id,
			Username: seat.Username,
			Seat:     seat.Index,
			Away:     seat.Away,
		})
		snap.Seats[seat.Index] = &id
		snap.Usernames[id] = seat.Username
		snap.Stacks[id] = seat.Stack
	}
	snap.PlayersCount = len(snap.Players)

	for id, amount := range st.Contributions {
		snap.Contributions[id] = amount
	}
	if st.CurrentPlayer != "" {
		current := st.CurrentPlayer
		snap.CurrentPlayer = &current
	}
	if st.Phase.Betting() && !st.ActionDeadline.IsZero() {
		deadline := st.ActionDeadline.Unix()
		snap.TimerDeadline = &deadline
	}
	if cards, ok := st.HoleCards[viewer]; ok && viewer != "" {
		snap.HoleCards[viewer] = cards
	}

	if r := st.Result; r != nil && st.Phase.Revealed() {
		snap.ResultReason = r.Reason
		switch len(r.Winners) {
		case 0:
		case 1:
			snap.Winner = r.Winners[0]
		default:
			snap.Winner = r.Winners
		}
		for id, amount := range r.Payouts {
			snap.SplitPots[id] = amount
		}
		for id, cards := range r.Revealed {
			snap.RevealedHands[id] = cards
			snap.HoleCards[id] = cards
		}
		if len(r.Ranks) > 0 {
			snap.HandRanks = make(map[string]string, len(r.Ranks))
			for id, rank := range r.Ranks {
				snap.HandRanks[id] = rank.String()
			}
		}
		snap.Pots = r.Pots
	}
	return snap
}
