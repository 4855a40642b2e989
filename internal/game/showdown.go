package game

import (
	"slices"
	"time"

	"github.com/lox/pokertables/poker"
)

// awardFold gives the whole pot to the last player standing.
func (e *Engine) awardFold(now time.Time) Outcome {
	s := e.state
	winner := s.livePlayers()[0]
	seat, _ := s.Seat(winner)
	seat.Stack += s.Pot

	return e.enterResult(now, &HandResult{
		Reason:   "fold",
		Winners:  []string{winner},
		Payouts:  map[string]int{winner: s.Pot},
		Revealed: map[string][]poker.Card{},
		Ranks:    map[string]poker.HandRank{},
		Pots:     []Pot{{Amount: s.Pot, Eligible: []string{winner}}},
	})
}

// showdown reveals live hands, builds side pots from what each player
// committed and awards every pot to its best eligible hand.
func (e *Engine) showdown(now time.Time) Outcome {
	s := e.state
	s.Phase = PhaseShowdown
	s.CurrentPlayer = ""

	result := &HandResult{
		Reason:   "showdown",
		Payouts:  make(map[string]int),
		Revealed: make(map[string][]poker.Card),
		Ranks:    make(map[string]poker.HandRank),
	}
	for _, p := range s.livePlayers() {
		hole := s.HoleCards[p]
		result.Revealed[p] = hole
		result.Ranks[p] = poker.Evaluate(append(slices.Clone(hole), s.Community...)...)
	}

	result.Pots = buildPots(s.Committed, s.live, e.potOrder())
	for i, pot := range result.Pots {
		winners := bestHands(pot.Eligible, result.Ranks)
		for p, amount := range splitPot(pot.Amount, winners) {
			result.Payouts[p] += amount
			if seat, ok := s.Seat(p); ok {
				seat.Stack += amount
			}
		}
		if i == 0 {
			result.Winners = winners
		}
	}

	return e.enterResult(now, result)
}

// potOrder lists everyone who committed chips, seated players clockwise
// from the dealer first, then anyone who has since left.
func (e *Engine) potOrder() []string {
	s := e.state
	ids := make([]string, 0, len(s.Committed))
	for p := range s.Committed {
		ids = append(ids, p)
	}
	order := s.clockwiseFromDealer(ids)
	var gone []string
	for _, p := range ids {
		if !slices.Contains(order, p) {
			gone = append(gone, p)
		}
	}
	slices.Sort(gone)
	return append(order, gone...)
}

// bestHands returns the eligible players holding the strongest rank,
// preserving their order.
func bestHands(eligible []string, ranks map[string]poker.HandRank) []string {
	var winners []string
	var best poker.HandRank
	for _, p := range eligible {
		rank, ok := ranks[p]
		if !ok {
			continue
		}
		switch {
		case len(winners) == 0:
			winners, best = []string{p}, rank
		case poker.Compare(rank, best) == poker.Greater:
			winners, best = []string{p}, rank
		case poker.Compare(rank, best) == poker.Equal:
			winners = append(winners, p)
		}
	}
	return winners
}
