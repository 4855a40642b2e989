package balance

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(":memory:", 1000)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	file, err := OpenFile(filepath.Join(t.TempDir(), "balances.json"), 1000)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(1000),
		"sqlite": sqlite,
		"file":   file,
	}
}

func TestStores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			b, err := store.GetBalance(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 1000, b, "unknown players get the default balance")

			require.NoError(t, store.SetBalance(ctx, "alice", 750))
			require.NoError(t, store.SetBalance(ctx, "bob", 0))

			b, err = store.GetBalance(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 750, b)

			b, err = store.GetBalance(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, 0, b)

			// Setting the same final value twice is idempotent.
			require.NoError(t, store.SetBalance(ctx, "alice", 750))
			b, err = store.GetBalance(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 750, b)
		})
	}
}

func TestSQLiteHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := OpenSQLite(":memory:", 1000)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetBalance(ctx, "alice", 900))
	require.NoError(t, store.SetBalance(ctx, "alice", 1100))
	require.NoError(t, store.SetBalance(ctx, "alice", 1100))

	history, err := store.History(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []HistoryEntry{
		{Balance: 900, Delta: -100},
		{Balance: 1100, Delta: 200},
		{Balance: 1100, Delta: 0},
	}, history)
}

func TestFileStoreReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "balances.json")

	first, err := OpenFile(path, 1000)
	require.NoError(t, err)
	require.NoError(t, first.SetBalance(ctx, "alice", 42))

	second, err := OpenFile(path, 1000)
	require.NoError(t, err)
	b, err := second.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 42, b)
}

// flakyStore fails the first failures writes.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	writes   []int
	inner    *MemoryStore
}

func (f *flakyStore) GetBalance(ctx context.Context, id string) (int, error) {
	return f.inner.GetBalance(ctx, id)
}

func (f *flakyStore) SetBalance(ctx context.Context, id string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("database is locked")
	}
	f.writes = append(f.writes, amount)
	return f.inner.SetBalance(ctx, id, amount)
}

func fastRetry() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func TestPersisterRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	store := &flakyStore{failures: 3, inner: NewMemoryStore(0)}
	p := NewPersister(store, log.New(io.Discard), WithBackOff(fastRetry))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Enqueue("alice", 120)

	require.Eventually(t, func() bool {
		b, _ := store.GetBalance(context.Background(), "alice")
		return b == 120
	}, 2*time.Second, 5*time.Millisecond)

	store.mu.Lock()
	assert.Equal(t, 4, store.calls)
	store.mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPersisterCoalesces(t *testing.T) {
	t.Parallel()

	store := &flakyStore{inner: NewMemoryStore(0)}
	p := NewPersister(store, log.New(io.Discard), WithBackOff(fastRetry))

	p.Enqueue("alice", 1)
	p.Enqueue("alice", 2)
	p.Enqueue("bob", 5)
	p.Enqueue("alice", 3)
	assert.Equal(t, 2, p.Pending())

	latest, ok := p.Latest("alice")
	require.True(t, ok)
	assert.Equal(t, 3, latest)

	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, 0, p.Pending())
	assert.ElementsMatch(t, []int{3, 5}, store.writes)

	_, ok = p.Latest("alice")
	assert.False(t, ok)
}

func TestPersisterFlushHonoursContext(t *testing.T) {
	t.Parallel()

	store := &flakyStore{failures: 1 << 30, inner: NewMemoryStore(0)}
	p := NewPersister(store, log.New(io.Discard), WithBackOff(fastRetry))
	p.Enqueue("alice", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Flush(ctx)
	require.Error(t, err)

	// The write is kept for the next attempt.
	assert.Equal(t, 1, p.Pending())
	latest, ok := p.Latest("alice")
	require.True(t, ok)
	assert.Equal(t, 10, latest)
}

func TestBalancesReadsThroughQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore(1000)
	p := NewPersister(store, log.New(io.Discard))
	b := Balances{Store: store, Persister: p}

	v, err := b.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1000, v)

	p.Enqueue("alice", 40)
	v, err = b.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 40, v)
}
