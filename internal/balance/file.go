package balance

import (
	"context"
	"fmt"
	"sync"

	"github.com/lox/pokertables/internal/fileutil"
)

// FileStore keeps balances in a JSON file that is rewritten atomically on
// every change. It suits single-process development servers.
type FileStore struct {
	mu       sync.Mutex
	path     string
	initial  int
	balances map[string]int
}

// OpenFile loads balances from path, starting empty if it does not exist.
func OpenFile(path string, initial int) (*FileStore, error) {
	f := &FileStore{
		path:     path,
		initial:  initial,
		balances: make(map[string]int),
	}
	if _, err := fileutil.ReadJSON(path, &f.balances); err != nil {
		return nil, err
	}
	if f.balances == nil {
		f.balances = make(map[string]int)
	}
	return f, nil
}

func (f *FileStore) GetBalance(_ context.Context, playerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[playerID]; ok {
		return b, nil
	}
	return f.initial, nil
}

func (f *FileStore) SetBalance(_ context.Context, playerID string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous, had := f.balances[playerID]
	f.balances[playerID] = amount

	if err := fileutil.WriteJSON(f.path, f.balances, 0o600); err != nil {
		if had {
			f.balances[playerID] = previous
		} else {
			delete(f.balances, playerID)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
