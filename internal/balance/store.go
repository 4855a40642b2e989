// Package balance persists player balances outside the tables.
//
// A Store is a key-value map from player id to chip balance. Tables never
// write to a Store directly while holding their lock; they hand the final
// balance to a Persister, which retries until the Store accepts it.
package balance

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable wraps failures of the backing store.
var ErrUnavailable = errors.New("balance store unavailable")

// Store gets and sets player balances. Implementations are safe for
// concurrent use across distinct player ids.
type Store interface {
	GetBalance(ctx context.Context, playerID string) (int, error)
	SetBalance(ctx context.Context, playerID string, amount int) error
}

// MemoryStore keeps balances in a map. Unknown players start with the
// default balance.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]int
	initial  int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(initial int) *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int),
		initial:  initial,
	}
}

func (m *MemoryStore) GetBalance(_ context.Context, playerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[playerID]; ok {
		return b, nil
	}
	return m.initial, nil
}

func (m *MemoryStore) SetBalance(_ context.Context, playerID string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[playerID] = amount
	return nil
}
