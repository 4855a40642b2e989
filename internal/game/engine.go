package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/lox/pokertables/internal/randutil"
	"github.com/lox/pokertables/poker"
)

var (
	ErrInvalidSeat   = errors.New("seat index out of range")
	ErrSeatTaken     = errors.New("seat already taken")
	ErrAlreadySeated = errors.New("player already seated")
	ErrNotSeated     = errors.New("player not seated")
)

// Outcome reports what a state-machine call did.
type Outcome struct {
	// Accepted is false when the call was ignored without changing state.
	Accepted bool
	// Reason explains why a call was ignored.
	Reason string
	// HandEnded is set when this call settled a hand.
	HandEnded bool
	// Settled maps player id to the balance to persist (reserve + stack)
	// for every seated player after a hand settles.
	Settled map[string]int
	// Released lists seats vacated by this call.
	Released []Seat
}

func ignored(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandSource sets the source of deck shuffles.
func WithRandSource(src randutil.Source) Option {
	return func(e *Engine) { e.rand = src }
}

// WithLogger sets the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine drives one table through its hands.
type Engine struct {
	state  *TableState
	rules  Rules
	rand   randutil.Source
	logger *log.Logger
}

// NewEngine creates an engine for a table with the given number of seats.
func NewEngine(seats int, rules Rules, opts ...Option) *Engine {
	if seats > poker.MaxSeatsPerDeck {
		panic(fmt.Sprintf("game: %d seats cannot be dealt from one deck", seats))
	}
	e := &Engine{
		state:  newTableState(seats),
		rules:  rules,
		rand:   randutil.NewSecure,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the table state. Callers must hold the table lock.
func (e *Engine) State() *TableState {
	return e.state
}

// Rules returns the table rules.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Sit places a player in a seat with the given stack and reserve.
func (e *Engine) Sit(index int, playerID, username string, stack, reserve int) error {
	s := e.state
	if index < 0 || index >= len(s.Seats) {
		return fmt.Errorf("%w: %d", ErrInvalidSeat, index)
	}
	if s.SeatOf(playerID) >= 0 {
		return ErrAlreadySeated
	}
	if s.Seats[index].Occupied() {
		return fmt.Errorf("%w: %d", ErrSeatTaken, index)
	}
	s.Seats[index] = Seat{
		Index:    index,
		PlayerID: playerID,
		Username: username,
		Stack:    stack,
		Reserve:  reserve,
	}
	return nil
}

// FreeSeat returns the lowest empty seat index, or -1 if the table is full.
func (e *Engine) FreeSeat() int {
	for i, seat := range e.state.Seats {
		if !seat.Occupied() {
			return i
		}
	}
	return -1
}

// SetAway marks a seated player as disconnected or back.
func (e *Engine) SetAway(now time.Time, playerID string, away bool) bool {
	seat, ok := e.state.Seat(playerID)
	if !ok {
		return false
	}
	if away && !seat.Away {
		seat.AwaySince = now
	}
	seat.Away = away
	return true
}

// Leave removes a player from the table. A player still live in a hand
// forfeits it first; chips already committed stay in the pot.
func (e *Engine) Leave(now time.Time, playerID string) (Seat, Outcome, error) {
	s := e.state
	idx := s.SeatOf(playerID)
	if idx < 0 {
		return Seat{}, Outcome{}, ErrNotSeated
	}

	out := Outcome{Accepted: true}
	if s.Phase.Betting() && s.live(playerID) {
		out = e.forfeit(now, playerID)
	}

	seat := s.Seats[idx]
	s.Seats[idx] = Seat{Index: idx}
	if out.Settled != nil {
		delete(out.Settled, playerID)
	}
	out.Released = append(out.Released, seat)
	e.logger.Info("Player left", "player", playerID, "seat", idx, "stack", seat.Stack)
	return seat, out, nil
}

// forfeit folds a live player who may not be the current actor.
func (e *Engine) forfeit(now time.Time, playerID string) Outcome {
	s := e.state
	if s.CurrentPlayer == playerID {
		return e.ApplyAction(now, playerID, Fold{})
	}
	s.Folded[playerID] = true
	if len(s.livePlayers()) == 1 {
		return e.awardFold(now)
	}
	if e.roundComplete() {
		return e.closeRound(now)
	}
	return Outcome{Accepted: true}
}

// StartHand begins a new hand if enough players are seated, otherwise it
// parks the table in Waiting. Busted players and players away for longer
// than AwayGrace are released first.
func (e *Engine) StartHand(now time.Time) Outcome {
	s := e.state
	out := Outcome{Accepted: true}
	out.Released = e.releaseIdleSeats(now, true)

	if s.OccupiedCount() < e.rules.MinPlayers {
		s.resetHand()
		s.Phase = PhaseWaiting
		s.Result = nil
		return out
	}

	s.resetHand()
	s.Result = nil
	s.InstanceID++
	s.HandID = uuid.NewString()
	s.DealerIndex = s.nextSeat(s.DealerIndex, func(Seat) bool { return true })

	var sb, bb int
	if s.OccupiedCount() == 2 {
		sb = s.DealerIndex
	} else {
		sb = s.nextSeat(s.DealerIndex, func(Seat) bool { return true })
	}
	bb = s.nextSeat(sb, func(Seat) bool { return true })

	s.Deck = poker.NewDeck(e.rand())
	for _, seat := range s.Seats {
		if seat.Occupied() {
			s.InHand[seat.PlayerID] = true
			s.Contributions[seat.PlayerID] = 0
			s.Committed[seat.PlayerID] = 0
		}
	}
	for range 2 {
		for _, seat := range s.Seats {
			if seat.Occupied() {
				s.HoleCards[seat.PlayerID] = append(s.HoleCards[seat.PlayerID], s.Deck.Draw())
			}
		}
	}

	sbID, bbID := s.Seats[sb].PlayerID, s.Seats[bb].PlayerID
	e.commit(sbID, e.rules.SmallBlind)
	e.commit(bbID, e.rules.BigBlind)
	s.CurrentBet = e.rules.BigBlind
	if !e.rules.BigBlindOption {
		s.Acted[sbID] = true
		s.Acted[bbID] = true
	}

	s.Phase = PhasePreFlop
	s.CurrentPlayer = s.nextActor(bb)
	s.ActionDeadline = now.Add(e.rules.DecisionTime)

	e.logger.Info("Hand started",
		"hand", s.HandID,
		"instance", s.InstanceID,
		"dealer", s.Seats[s.DealerIndex].PlayerID,
		"small_blind", sbID,
		"big_blind", bbID,
		"players", len(s.InHand))

	if e.roundComplete() {
		settled := e.closeRound(now)
		settled.Released = out.Released
		return settled
	}
	return out
}

// commit moves up to amount chips from the player's stack into the pot and
// returns the chips actually moved. A player left with no chips is all-in.
func (e *Engine) commit(playerID string, amount int) int {
	s := e.state
	seat, ok := s.Seat(playerID)
	if !ok || amount <= 0 {
		return 0
	}
	amount = min(amount, seat.Stack)
	seat.Stack -= amount
	s.Pot += amount
	s.Contributions[playerID] += amount
	s.Committed[playerID] += amount
	if seat.Stack == 0 {
		s.AllIn[playerID] = true
	}
	return amount
}

// ApplyAction validates and applies an action by the current player.
// Anything illegal is ignored and leaves the state untouched.
func (e *Engine) ApplyAction(now time.Time, playerID string, action Action) Outcome {
	s := e.state
	if !s.Phase.Betting() {
		return ignored("no hand in progress")
	}
	seat, ok := s.Seat(playerID)
	if !ok || !s.InHand[playerID] {
		return ignored("not seated in this hand")
	}
	if playerID != s.CurrentPlayer {
		return ignored("not your turn")
	}

	contributed := s.Contributions[playerID]
	switch a := action.(type) {
	case Fold:
		s.Folded[playerID] = true
		if len(s.livePlayers()) == 1 {
			return e.awardFold(now)
		}

	case Check:
		if contributed != s.CurrentBet {
			return ignored("cannot check facing a bet")
		}

	case Call:
		e.commit(playerID, s.CurrentBet-contributed)

	case Bet:
		switch {
		case s.CurrentBet != 0:
			return ignored("cannot bet facing a bet, raise instead")
		case a.Amount <= 0:
			return ignored("bet must be positive")
		case seat.Stack < a.Amount:
			return ignored("insufficient stack")
		}
		e.commit(playerID, a.Amount)
		s.CurrentBet = s.Contributions[playerID]
		clear(s.Acted)

	case Raise:
		switch {
		case s.CurrentBet == 0:
			return ignored("nothing to raise, bet instead")
		case a.To <= s.CurrentBet:
			return ignored("raise must exceed the current bet")
		case seat.Stack < a.To-contributed:
			return ignored("insufficient stack")
		}
		e.commit(playerID, a.To-contributed)
		s.CurrentBet = a.To
		clear(s.Acted)

	default:
		return ignored(fmt.Sprintf("unsupported action %T", action))
	}

	s.Acted[playerID] = true
	e.logger.Debug("Action applied", "hand", s.HandID, "player", playerID, "action", action.Name(), "pot", s.Pot)

	if e.roundComplete() {
		return e.closeRound(now)
	}
	s.CurrentPlayer = s.nextActor(s.SeatOf(playerID))
	s.ActionDeadline = now.Add(e.rules.DecisionTime)
	return Outcome{Accepted: true}
}

// Timeout folds playerID if they are still the current player of hand
// instanceID and their deadline has passed. Stale or early calls are no-ops.
func (e *Engine) Timeout(now time.Time, instanceID uint64, playerID string) Outcome {
	s := e.state
	switch {
	case !s.Phase.Betting():
		return ignored("no hand in progress")
	case instanceID != s.InstanceID:
		return ignored("stale hand")
	case playerID != s.CurrentPlayer:
		return ignored("player already acted")
	case now.Before(s.ActionDeadline):
		return ignored("deadline not reached")
	}
	e.logger.Info("Decision timeout, folding", "hand", s.HandID, "instance", instanceID, "player", playerID)
	return e.ApplyAction(now, playerID, Fold{})
}

// FinishResult ends the result pause of hand instanceID and starts the next
// hand, or returns the table to Waiting when too few players remain.
func (e *Engine) FinishResult(now time.Time, instanceID uint64) Outcome {
	s := e.state
	switch {
	case s.Phase != PhaseResult:
		return ignored("no result pending")
	case instanceID != s.InstanceID:
		return ignored("stale hand")
	case now.Before(s.ResultDeadline):
		return ignored("result delay not elapsed")
	}
	return e.StartHand(now)
}

// CheckDeadlines applies whatever timer is overdue at now: a decision
// timeout, the end of the result pause, or the release of away players
// at an idle table.
func (e *Engine) CheckDeadlines(now time.Time) Outcome {
	s := e.state
	switch {
	case s.Phase.Betting() && !now.Before(s.ActionDeadline):
		return e.Timeout(now, s.InstanceID, s.CurrentPlayer)
	case s.Phase == PhaseResult && !now.Before(s.ResultDeadline):
		return e.FinishResult(now, s.InstanceID)
	case s.Phase == PhaseWaiting:
		if released := e.releaseIdleSeats(now, false); len(released) > 0 {
			return Outcome{Accepted: true, Released: released}
		}
	}
	return ignored("nothing due")
}

// releaseIdleSeats vacates seats whose player has been away for at least
// AwayGrace. Busted seats are vacated only at a hand boundary.
func (e *Engine) releaseIdleSeats(now time.Time, boundary bool) []Seat {
	var released []Seat
	for i, seat := range e.state.Seats {
		if !seat.Occupied() {
			continue
		}
		busted := boundary && seat.Stack == 0
		away := seat.Away && now.Sub(seat.AwaySince) >= e.rules.AwayGrace
		if busted || away {
			released = append(released, seat)
			e.state.Seats[i] = Seat{Index: i}
			e.logger.Info("Seat released", "player", seat.PlayerID, "seat", i, "busted", busted, "away", seat.Away)
		}
	}
	return released
}

// settled returns the balance to persist for every seated player.
func (e *Engine) settled() map[string]int {
	out := make(map[string]int)
	for _, seat := range e.state.Seats {
		if seat.Occupied() {
			out[seat.PlayerID] = seat.Balance()
		}
	}
	return out
}

func (e *Engine) enterResult(now time.Time, result *HandResult) Outcome {
	s := e.state
	s.Result = result
	s.Pot = 0
	clear(s.Contributions)
	s.CurrentBet = 0
	s.CurrentPlayer = ""
	s.ActionDeadline = time.Time{}
	s.Phase = PhaseResult
	s.ResultDeadline = now.Add(e.rules.ResultDelay)

	e.logger.Info("Hand settled",
		"hand", s.HandID,
		"reason", result.Reason,
		"winners", result.Winners,
		"payouts", result.Payouts)

	return Outcome{Accepted: true, HandEnded: true, Settled: e.settled()}
}
