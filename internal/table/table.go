package table

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/pokertables/internal/config"
	"github.com/lox/pokertables/internal/game"
)

// ErrTooManyConnections is returned by Watch when the table is at its
// connection limit.
var ErrTooManyConnections = errors.New("too many connections")

// maxDeadlineSteps bounds how many overdue transitions one touch applies.
const maxDeadlineSteps = 32

// Watcher receives the table after every accepted change. Notify is called
// with the table lock held and must not block.
type Watcher interface {
	// PlayerID is the identity bound to the watcher, or "" for spectators.
	PlayerID() string
	Notify(s *Session)
}

// Table is one poker table: an engine, its timers and its watchers, all
// guarded by a single mutex.
type Table struct {
	id        string
	tier      config.TierConfig
	permanent bool
	registry  *Registry
	clock     quartz.Clock
	logger    *log.Logger

	mu       sync.Mutex
	engine   *game.Engine
	timers   *Scheduler
	watchers map[Watcher]struct{}
	used     bool
	closed   bool
}

// Session is the view of a table handed to Do. It is only valid inside
// the closure.
type Session struct {
	t *Table
}

// ID returns the table id.
func (t *Table) ID() string {
	return t.id
}

// Tier returns the stake level the table was created from.
func (t *Table) Tier() config.TierConfig {
	return t.tier
}

// Do runs fn with exclusive access to the table. Any overdue timeout or
// result expiry is applied first.
func (t *Table) Do(fn func(*Session)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTableNotFound
	}
	t.checkDeadlines()
	fn(&Session{t: t})
	idle := t.idle()
	t.mu.Unlock()

	if idle {
		t.registry.reap(t)
	}
	return nil
}

func (t *Table) onTimer(kind timerKind, instanceID uint64, playerID string) {
	_ = t.Do(func(*Session) {
		now := t.clock.Now()
		var out game.Outcome
		switch kind {
		case timerDecision:
			out = t.engine.Timeout(now, instanceID, playerID)
		case timerResult:
			out = t.engine.FinishResult(now, instanceID)
		case timerAway:
			out = t.engine.CheckDeadlines(now)
		}
		t.apply(out)
	})
}

func (t *Table) checkDeadlines() {
	for range maxDeadlineSteps {
		out := t.engine.CheckDeadlines(t.clock.Now())
		if !out.Accepted {
			return
		}
		t.apply(out)
	}
}

// apply persists and broadcasts the effects of an accepted outcome and
// starts a hand when enough players are waiting.
func (t *Table) apply(out game.Outcome) {
	if !out.Accepted {
		return
	}
	for {
		t.persist(out)
		st := t.engine.State()
		if st.Phase != game.PhaseWaiting || st.OccupiedCount() < t.engine.Rules().MinPlayers {
			break
		}
		out = t.engine.StartHand(t.clock.Now())
	}
	t.timers.Arm(t.engine.State(), t.engine.Rules().AwayGrace)
	t.broadcast()
}

func (t *Table) persist(out game.Outcome) {
	p := t.registry.persister
	if out.Settled != nil {
		p.EnqueueAll(out.Settled)
	}
	for _, seat := range out.Released {
		p.Enqueue(seat.PlayerID, seat.Balance())
		t.registry.release(seat.PlayerID, t.id)
	}
}

func (t *Table) broadcast() {
	s := &Session{t: t}
	for w := range t.watchers {
		w.Notify(s)
	}
}

func (t *Table) idle() bool {
	return !t.permanent && t.used && !t.closed &&
		t.engine.State().OccupiedCount() == 0 && len(t.watchers) == 0
}

func (t *Table) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.timers.Stop()
}

// ID returns the table id.
func (s *Session) ID() string {
	return s.t.id
}

// Tier returns the table's stake level.
func (s *Session) Tier() config.TierConfig {
	return s.t.tier
}

// State returns the live table state. Do not retain it after Do returns.
func (s *Session) State() *game.TableState {
	return s.t.engine.State()
}

// Now is the table clock's current time.
func (s *Session) Now() time.Time {
	return s.t.clock.Now()
}

// Act applies a player action. Accepted actions are broadcast to every
// watcher; ignored ones change nothing.
func (s *Session) Act(playerID string, action game.Action) game.Outcome {
	out := s.t.engine.ApplyAction(s.t.clock.Now(), playerID, action)
	if !out.Accepted {
		s.t.logger.Debug("Action ignored", "player", playerID, "action", action.Name(), "reason", out.Reason)
	}
	s.t.apply(out)
	return out
}

// Watch registers w and sends it the current state. A seated player who
// reconnects is no longer away.
func (s *Session) Watch(w Watcher) error {
	t := s.t
	if _, ok := t.watchers[w]; ok {
		return nil
	}
	if len(t.watchers) >= t.tier.MaxConnections {
		return ErrTooManyConnections
	}
	t.watchers[w] = struct{}{}
	if id := w.PlayerID(); id != "" {
		if seat, ok := t.engine.State().Seat(id); ok && seat.Away {
			t.engine.SetAway(t.clock.Now(), id, false)
			t.timers.Arm(t.engine.State(), t.engine.Rules().AwayGrace)
			t.logger.Info("Player reconnected", "player", id)
		}
	}
	w.Notify(s)
	return nil
}

// Unwatch removes w. When it was the last connection of a seated player
// the seat is marked away; the player keeps their cards and is released
// between hands. Disconnecting never folds.
func (s *Session) Unwatch(w Watcher) {
	t := s.t
	if _, ok := t.watchers[w]; !ok {
		return
	}
	delete(t.watchers, w)

	id := w.PlayerID()
	if id == "" || s.connected(id) {
		return
	}
	if t.engine.SetAway(t.clock.Now(), id, true) {
		t.logger.Info("Player away", "player", id)
		t.apply(game.Outcome{Accepted: true})
	}
}

// Watchers returns the number of registered watchers.
func (s *Session) Watchers() int {
	return len(s.t.watchers)
}

// Broadcast sends the current state to every watcher.
func (s *Session) Broadcast() {
	s.t.broadcast()
}

func (s *Session) connected(playerID string) bool {
	for w := range s.t.watchers {
		if w.PlayerID() == playerID {
			return true
		}
	}
	return false
}
