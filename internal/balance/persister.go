package balance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// Persister writes balances to a Store in the background. Writes for the
// same player coalesce so only the latest balance is stored, and failed
// writes are retried with exponential backoff until they succeed or the
// persister stops. Because the value written is the final balance, a
// write delivered more than once is harmless.
type Persister struct {
	store      Store
	logger     *log.Logger
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	pending  map[string]int
	inflight map[string]int
	order    []string
	wake     chan struct{}
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithBackOff sets the retry policy used for each write.
func WithBackOff(fn func() backoff.BackOff) PersisterOption {
	return func(p *Persister) { p.newBackOff = fn }
}

// NewPersister creates a persister for store.
func NewPersister(store Store, logger *log.Logger, opts ...PersisterOption) *Persister {
	p := &Persister{
		store:  store,
		logger: logger.WithPrefix("persister"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		pending:  make(map[string]int),
		inflight: make(map[string]int),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue schedules balance to be written for playerID. It never blocks.
func (p *Persister) Enqueue(playerID string, balance int) {
	p.mu.Lock()
	if _, queued := p.pending[playerID]; !queued {
		p.order = append(p.order, playerID)
	}
	p.pending[playerID] = balance
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// EnqueueAll schedules every balance in m.
func (p *Persister) EnqueueAll(m map[string]int) {
	for id, balance := range m {
		p.Enqueue(id, balance)
	}
}

// Pending returns the number of players with an unwritten balance.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Latest returns the queued balance for playerID, if any. Readers use it
// so a balance that has not reached the store yet is not lost.
func (p *Persister) Latest(playerID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.pending[playerID]; ok {
		return b, true
	}
	b, ok := p.inflight[playerID]
	return b, ok
}

func (p *Persister) next() (string, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		return "", 0, false
	}
	id := p.order[0]
	p.order = p.order[1:]
	balance := p.pending[id]
	delete(p.pending, id)
	p.inflight[id] = balance
	return id, balance, true
}

func (p *Persister) done(playerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, playerID)
}

// requeue puts back a write that was interrupted, unless a newer balance
// arrived in the meantime.
func (p *Persister) requeue(playerID string, balance int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, playerID)
	if _, newer := p.pending[playerID]; newer {
		return
	}
	p.pending[playerID] = balance
	p.order = append([]string{playerID}, p.order...)
}

// Run drains the queue until ctx is cancelled.
func (p *Persister) Run(ctx context.Context) error {
	p.logger.Debug("Persister started")
	for {
		if err := p.drain(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}
	}
}

// Flush writes everything queued, retrying until done or ctx expires.
func (p *Persister) Flush(ctx context.Context) error {
	return p.drain(ctx)
}

func (p *Persister) drain(ctx context.Context) error {
	for {
		id, balance, ok := p.next()
		if !ok {
			return nil
		}
		if err := p.write(ctx, id, balance); err != nil {
			p.requeue(id, balance)
			return err
		}
		p.done(id)
	}
}

func (p *Persister) write(ctx context.Context, playerID string, balance int) error {
	attempt := 0
	op := func() error {
		attempt++
		return p.store.SetBalance(ctx, playerID, balance)
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("Balance write failed, retrying",
			"player", playerID,
			"balance", balance,
			"attempt", attempt,
			"wait", wait,
			"error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.logger.Error("Balance write abandoned", "player", playerID, "balance", balance, "error", err)
		}
		return err
	}
	p.logger.Debug("Balance persisted", "player", playerID, "balance", balance, "attempts", attempt)
	return nil
}

// Balances reads through the persister: a queued balance wins over the
// stored one.
type Balances struct {
	Store     Store
	Persister *Persister
}

// GetBalance returns the most recent balance for playerID.
func (b Balances) GetBalance(ctx context.Context, playerID string) (int, error) {
	if v, ok := b.Persister.Latest(playerID); ok {
		return v, nil
	}
	return b.Store.GetBalance(ctx, playerID)
}
