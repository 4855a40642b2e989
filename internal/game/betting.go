package game

import (
	"time"

	"github.com/lox/pokertables/poker"
)

// roundComplete reports whether the current street can close: every live
// player who is not all-in has matched the current bet and acted since the
// last bet or raise.
func (e *Engine) roundComplete() bool {
	s := e.state
	for p := range s.InHand {
		if !s.canAct(p) {
			continue
		}
		if s.Contributions[p] != s.CurrentBet || !s.Acted[p] {
			return false
		}
	}
	return true
}

// closeRound ends the street and deals the next one. When at most one
// player can still bet, the remaining streets are dealt straight through
// to showdown.
func (e *Engine) closeRound(now time.Time) Outcome {
	s := e.state
	for {
		for p := range s.Contributions {
			s.Contributions[p] = 0
		}
		s.CurrentBet = 0
		clear(s.Acted)

		if s.Phase == PhaseRiver {
			return e.showdown(now)
		}

		s.Phase++
		s.Deck.Burn()
		for len(s.Community) < s.Phase.communityCount() {
			s.Community = append(s.Community, s.Deck.Draw())
		}
		e.logger.Debug("Street dealt", "hand", s.HandID, "phase", s.Phase, "board", poker.FormatCards(s.Community))

		if e.actorsLeft() > 1 {
			s.CurrentPlayer = s.nextActor(s.DealerIndex)
			s.ActionDeadline = now.Add(e.rules.DecisionTime)
			return Outcome{Accepted: true}
		}
	}
}

func (e *Engine) actorsLeft() int {
	n := 0
	for p := range e.state.InHand {
		if e.state.canAct(p) {
			n++
		}
	}
	return n
}
