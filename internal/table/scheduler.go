package table

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/pokertables/internal/game"
)

type timerKind int

const (
	timerDecision timerKind = iota
	timerResult
	timerAway
)

func (k timerKind) String() string {
	switch k {
	case timerDecision:
		return "decision"
	case timerResult:
		return "result"
	default:
		return "away"
	}
}

// Scheduler owns the timers of one table: the decision clock of the
// current player, the result pause, and the grace period of away players
// at an idle table. At most one timer is armed at a time. A timer that
// fires late or for a hand that has moved on is harmless because the
// engine guards every timed transition by instance id and deadline.
type Scheduler struct {
	clock  quartz.Clock
	logger *log.Logger
	fire   func(kind timerKind, instanceID uint64, playerID string)

	timer    *quartz.Timer
	kind     timerKind
	at       time.Time
	instance uint64
	player   string
}

func newScheduler(clock quartz.Clock, logger *log.Logger, fire func(timerKind, uint64, string)) *Scheduler {
	return &Scheduler{clock: clock, logger: logger, fire: fire}
}

// Arm replaces the pending timer with the one the state now needs.
// Callers hold the table lock.
func (s *Scheduler) Arm(state *game.TableState, awayGrace time.Duration) {
	kind, at, ok := nextDeadline(state, awayGrace)
	if !ok {
		s.Stop()
		return
	}
	instanceID, playerID := state.InstanceID, state.CurrentPlayer
	if s.timer != nil && s.kind == kind && s.at.Equal(at) &&
		s.instance == instanceID && s.player == playerID {
		return
	}
	s.Stop()

	d := max(at.Sub(s.clock.Now()), 0)
	s.kind, s.at, s.instance, s.player = kind, at, instanceID, playerID
	s.timer = s.clock.AfterFunc(d, func() {
		s.fire(kind, instanceID, playerID)
	}, "scheduler", kind.String())

	s.logger.Debug("Timer armed", "kind", kind, "instance", instanceID, "player", playerID, "in", d)
}

// Stop cancels the pending timer, if any.
func (s *Scheduler) Stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func nextDeadline(state *game.TableState, awayGrace time.Duration) (timerKind, time.Time, bool) {
	switch {
	case state.Phase.Betting():
		return timerDecision, state.ActionDeadline, true
	case state.Phase == game.PhaseResult:
		return timerResult, state.ResultDeadline, true
	case state.Phase == game.PhaseWaiting:
		var earliest time.Time
		for _, seat := range state.Seats {
			if seat.Occupied() && seat.Away {
				at := seat.AwaySince.Add(awayGrace)
				if earliest.IsZero() || at.Before(earliest) {
					earliest = at
				}
			}
		}
		if !earliest.IsZero() {
			return timerAway, earliest, true
		}
	}
	return 0, time.Time{}, false
}
