package game

import (
	"time"

	"github.com/lox/pokertables/poker"
)

// Rules are the per-table settings the engine enforces.
type Rules struct {
	SmallBlind   int
	BigBlind     int
	MinPlayers   int
	DecisionTime time.Duration
	ResultDelay  time.Duration
	// AwayGrace is how long a disconnected player keeps a seat while the
	// table is idle.
	AwayGrace time.Duration
	// BigBlindOption lets the big blind act preflop when the pot is only
	// called around. When false both blinds count as having acted.
	BigBlindOption bool
}

// DefaultRules returns 1/2 blinds with the standard timers.
func DefaultRules() Rules {
	return Rules{
		SmallBlind:   1,
		BigBlind:     2,
		MinPlayers:   2,
		DecisionTime: 30 * time.Second,
		ResultDelay:  5 * time.Second,
		AwayGrace:    30 * time.Second,
	}
}

// Seat is one position at the table. An empty seat has no PlayerID.
type Seat struct {
	Index    int
	PlayerID string
	Username string
	// Stack is the chip count in play at this table.
	Stack int
	// Reserve is the part of the player's balance left off the table.
	// Reserve+Stack is what gets persisted.
	Reserve   int
	Away      bool
	AwaySince time.Time
}

// Occupied reports whether a player sits in the seat.
func (s Seat) Occupied() bool {
	return s.PlayerID != ""
}

// Balance is the amount owed back to the external balance store.
func (s Seat) Balance() int {
	return s.Reserve + s.Stack
}

// HandResult describes how the last hand was settled.
type HandResult struct {
	// Reason is "fold" or "showdown".
	Reason string
	// Winners are the winners of the main pot, in seat order from the dealer.
	Winners []string
	// Payouts maps each player to the chips they collected.
	Payouts map[string]int
	// Revealed holds the hole cards of players who reached showdown.
	Revealed map[string][]poker.Card
	Ranks    map[string]poker.HandRank
	Pots     []Pot
}

// TableState is the full state of one table. It is owned by a single Engine
// and must only be touched under the table's lock.
type TableState struct {
	Seats       []Seat
	DealerIndex int

	HandID     string
	InstanceID uint64
	Phase      Phase

	Deck      *poker.Deck
	HoleCards map[string][]poker.Card
	Community []poker.Card

	// Pot includes the chips in Contributions for the current street.
	Pot int
	// Contributions are chips committed on the current street.
	Contributions map[string]int
	// Committed are chips committed over the whole hand, used for side pots.
	Committed  map[string]int
	CurrentBet int

	CurrentPlayer string
	InHand        map[string]bool
	Folded        map[string]bool
	Acted         map[string]bool
	AllIn         map[string]bool

	ActionDeadline time.Time
	ResultDeadline time.Time

	Result *HandResult
}

func newTableState(seats int) *TableState {
	s := &TableState{
		Seats:       make([]Seat, seats),
		DealerIndex: -1,
	}
	for i := range s.Seats {
		s.Seats[i].Index = i
	}
	s.resetHand()
	return s
}

func (s *TableState) resetHand() {
	s.Deck = nil
	s.HoleCards = make(map[string][]poker.Card)
	s.Community = nil
	s.Pot = 0
	s.Contributions = make(map[string]int)
	s.Committed = make(map[string]int)
	s.CurrentBet = 0
	s.CurrentPlayer = ""
	s.InHand = make(map[string]bool)
	s.Folded = make(map[string]bool)
	s.Acted = make(map[string]bool)
	s.AllIn = make(map[string]bool)
	s.ActionDeadline = time.Time{}
	s.ResultDeadline = time.Time{}
}

// SeatOf returns the seat index of playerID, or -1.
func (s *TableState) SeatOf(playerID string) int {
	if playerID == "" {
		return -1
	}
	for i := range s.Seats {
		if s.Seats[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Seat returns the seat held by playerID.
func (s *TableState) Seat(playerID string) (*Seat, bool) {
	i := s.SeatOf(playerID)
	if i < 0 {
		return nil, false
	}
	return &s.Seats[i], true
}

// OccupiedCount returns the number of seated players.
func (s *TableState) OccupiedCount() int {
	n := 0
	for _, seat := range s.Seats {
		if seat.Occupied() {
			n++
		}
	}
	return n
}

// ChipsInPlay is the conserved total: every seated stack plus the pot.
func (s *TableState) ChipsInPlay() int {
	total := s.Pot
	for _, seat := range s.Seats {
		total += seat.Stack
	}
	return total
}

// live reports whether p was dealt in and has not folded.
func (s *TableState) live(p string) bool {
	return s.InHand[p] && !s.Folded[p]
}

// canAct reports whether p may still put chips in this hand.
func (s *TableState) canAct(p string) bool {
	return s.live(p) && !s.AllIn[p]
}

// livePlayers returns non-folded players in seat order.
func (s *TableState) livePlayers() []string {
	var out []string
	for _, seat := range s.Seats {
		if seat.Occupied() && s.live(seat.PlayerID) {
			out = append(out, seat.PlayerID)
		}
	}
	return out
}

// nextSeat returns the first seat clockwise after from whose occupant
// satisfies ok, or -1.
func (s *TableState) nextSeat(from int, ok func(Seat) bool) int {
	n := len(s.Seats)
	for step := 1; step <= n; step++ {
		i := ((from+step)%n + n) % n
		if s.Seats[i].Occupied() && ok(s.Seats[i]) {
			return i
		}
	}
	return -1
}

// nextActor returns the player after seat from who can still act.
func (s *TableState) nextActor(from int) string {
	i := s.nextSeat(from, func(seat Seat) bool { return s.canAct(seat.PlayerID) })
	if i < 0 {
		return ""
	}
	return s.Seats[i].PlayerID
}

// clockwiseFromDealer orders ids by seat, starting left of the dealer.
func (s *TableState) clockwiseFromDealer(ids []string) []string {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	n := len(s.Seats)
	out := make([]string, 0, len(ids))
	for step := 1; step <= n; step++ {
		seat := s.Seats[((s.DealerIndex+step)%n+n)%n]
		if want[seat.PlayerID] {
			out = append(out, seat.PlayerID)
		}
	}
	return out
}
