// Package table owns the live tables of a server process.
//
// A Registry maps table ids to Tables. Each Table serializes every change
// (player actions, timers, joins, leaves, connection churn) behind one
// mutex, entered through Table.Do. The registry lock is never held while a
// table lock is taken; a table may take the registry lock to update the
// player index.
package table

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/pokertables/internal/balance"
	"github.com/lox/pokertables/internal/config"
	"github.com/lox/pokertables/internal/game"
	"github.com/lox/pokertables/internal/randutil"
)

var (
	ErrTableNotFound       = errors.New("table not found")
	ErrUnknownLevel        = errors.New("unknown table level")
	ErrTableFull           = errors.New("table is full")
	ErrSeatTaken           = errors.New("seat already taken")
	ErrInvalidSeat         = errors.New("invalid seat")
	ErrBuyInOutOfRange     = errors.New("buy-in outside table limits")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadySeated       = errors.New("player already seated")
	ErrNotSeated           = errors.New("player not seated")
)

// Registry is the set of tables in one server process.
type Registry struct {
	cfg       *config.Config
	balances  balance.Balances
	persister *balance.Persister
	clock     quartz.Clock
	logger    *log.Logger
	rand      randutil.Source

	mu      sync.RWMutex
	tables  map[string]*Table
	players map[string]string
	nextID  int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for deadlines and timers.
func WithClock(clock quartz.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithLogger sets the registry logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithRandSource sets the shuffle source for every table.
func WithRandSource(src randutil.Source) Option {
	return func(r *Registry) { r.rand = src }
}

// NewRegistry creates a registry and opens the tables each tier asks for
// at startup. Those tables stay open when empty.
func NewRegistry(cfg *config.Config, store balance.Store, persister *balance.Persister, opts ...Option) *Registry {
	r := &Registry{
		cfg:       cfg,
		balances:  balance.Balances{Store: store, Persister: persister},
		persister: persister,
		clock:     quartz.NewReal(),
		logger:    log.Default(),
		rand:      randutil.NewSecure,
		tables:    make(map[string]*Table),
		players:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithPrefix("registry")

	for _, tier := range cfg.Tiers {
		for range tier.Tables {
			r.mu.Lock()
			id := r.allocateIDLocked()
			r.tables[id] = r.newTable(id, tier, true)
			r.mu.Unlock()
		}
	}
	return r
}

func (r *Registry) newTable(id string, tier config.TierConfig, permanent bool) *Table {
	logger := r.logger.WithPrefix("table").With("table", id)
	t := &Table{
		id:        id,
		tier:      tier,
		permanent: permanent,
		registry:  r,
		clock:     r.clock,
		logger:    logger,
		watchers:  make(map[Watcher]struct{}),
	}
	t.engine = game.NewEngine(tier.MaxSeats, tier.Rules(),
		game.WithRandSource(r.rand),
		game.WithLogger(logger))
	t.timers = newScheduler(r.clock, logger, t.onTimer)
	r.logger.Info("Table opened", "table", id, "level", tier.Level,
		"blinds", fmt.Sprintf("%d/%d", tier.SmallBlind, tier.BigBlind), "seats", tier.MaxSeats)
	return t
}

func (r *Registry) allocateIDLocked() string {
	for {
		r.nextID++
		id := strconv.Itoa(r.nextID)
		if _, taken := r.tables[id]; !taken {
			return id
		}
	}
}

// Get returns the table with id.
func (r *Registry) Get(id string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

// GetOrCreate returns the table with id, creating it from the tier with
// the given level if it does not exist.
func (r *Registry) GetOrCreate(id, level string) (*Table, error) {
	if t, ok := r.Get(id); ok {
		return t, nil
	}
	tier, ok := r.cfg.Tier(level)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[id]; ok {
		return t, nil
	}
	t := r.newTable(id, tier, false)
	r.tables[id] = t
	return t, nil
}

// Create opens a new table at the given level under a fresh id.
func (r *Registry) Create(level string) (*Table, error) {
	tier, ok := r.cfg.Tier(level)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.allocateIDLocked()
	t := r.newTable(id, tier, false)
	r.tables[id] = t
	return t, nil
}

// Remove closes and forgets a table. Pending timers are stopped.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	t, ok := r.tables[id]
	delete(r.tables, id)
	r.mu.Unlock()

	if ok {
		t.close()
		r.logger.Info("Table removed", "table", id)
	}
}

// reap removes t if it is still idle.
func (r *Registry) reap(t *Table) {
	t.mu.Lock()
	idle := t.idle()
	if idle {
		t.closed = true
		t.timers.Stop()
	}
	t.mu.Unlock()

	if idle {
		r.mu.Lock()
		if r.tables[t.id] == t {
			delete(r.tables, t.id)
		}
		r.mu.Unlock()
		r.logger.Info("Table removed", "table", t.id, "reason", "empty")
	}
}

// Info summarizes a table for listings.
type Info struct {
	ID         string `json:"id"`
	Level      string `json:"level"`
	SmallBlind int    `json:"small_blind"`
	BigBlind   int    `json:"big_blind"`
	MinBuyIn   int    `json:"min_buy_in"`
	MaxBuyIn   int    `json:"max_buy_in"`
	Players    int    `json:"players"`
	MaxSeats   int    `json:"max_seats"`
	Phase      string `json:"phase"`
}

// List returns every table at level, or all tables when level is empty,
// ordered by id.
func (r *Registry) List(level string) []Info {
	var infos []Info
	for _, t := range r.snapshot() {
		if level != "" && t.tier.Level != level {
			continue
		}
		_ = t.Do(func(s *Session) {
			st := s.State()
			infos = append(infos, Info{
				ID:         t.id,
				Level:      t.tier.Level,
				SmallBlind: t.tier.SmallBlind,
				BigBlind:   t.tier.BigBlind,
				MinBuyIn:   t.tier.MinBuyIn,
				MaxBuyIn:   t.tier.MaxBuyIn,
				Players:    st.OccupiedCount(),
				MaxSeats:   len(st.Seats),
				Phase:      st.Phase.String(),
			})
		})
	}
	return infos
}

func (r *Registry) snapshot() []*Table {
	r.mu.RLock()
	tables := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.mu.RUnlock()

	slices.SortFunc(tables, func(a, b *Table) int {
		ai, aerr := strconv.Atoi(a.id)
		bi, berr := strconv.Atoi(b.id)
		if aerr == nil && berr == nil {
			return cmp.Compare(ai, bi)
		}
		return cmp.Compare(a.id, b.id)
	})
	return tables
}

// Sweep applies overdue timeouts and result expiries on every table. It
// backs up the per-table timers so a lost timer never stalls a table.
func (r *Registry) Sweep(now time.Time) {
	for _, t := range r.snapshot() {
		_ = t.Do(func(*Session) {})
	}
	r.logger.Debug("Swept tables", "at", now)
}

// TableOf returns the id of the table playerID is seated at.
func (r *Registry) TableOf(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.players[playerID]
	return id, ok
}

// reserve claims playerID's single seat for tableID.
func (r *Registry) reserve(playerID, tableID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at, ok := r.players[playerID]; ok {
		return fmt.Errorf("%w at table %s", ErrAlreadySeated, at)
	}
	r.players[playerID] = tableID
	return nil
}

// release drops playerID's claim on tableID.
func (r *Registry) release(playerID, tableID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.players[playerID] == tableID {
		delete(r.players, playerID)
	}
}

// Close stops every table. Seated players are credited their stack plus
// whatever they committed to an unfinished hand, which is abandoned.
func (r *Registry) Close() {
	for _, t := range r.snapshot() {
		_ = t.Do(func(s *Session) {
			st := s.State()
			for _, seat := range st.Seats {
				if !seat.Occupied() {
					continue
				}
				refund := 0
				if st.Phase.Betting() {
					refund = st.Committed[seat.PlayerID]
				}
				r.persister.Enqueue(seat.PlayerID, seat.Balance()+refund)
			}
		})
		t.close()
	}
	r.logger.Info("Registry closed")
}
