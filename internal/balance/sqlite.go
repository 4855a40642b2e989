package balance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps balances in a SQLite database with an append-only
// history of every write.
type SQLiteStore struct {
	db      *sql.DB
	initial int
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string, initial int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, initial: initial}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS balances (
			player_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create balances table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS balance_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id TEXT NOT NULL,
			balance INTEGER NOT NULL,
			delta INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create balance_history table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBalance(ctx context.Context, playerID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, "SELECT balance FROM balances WHERE player_id = ?", playerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return s.initial, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get balance: %v", ErrUnavailable, err)
	}
	return balance, nil
}

// SetBalance upserts the balance and records the change. Writing the same
// value twice records a zero delta and leaves the balance unchanged.
func (s *SQLiteStore) SetBalance(ctx context.Context, playerID string, amount int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	previous := s.initial
	err = tx.QueryRowContext(ctx, "SELECT balance FROM balances WHERE player_id = ?", playerID).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: read balance: %v", ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO balances (player_id, balance)
		VALUES (?, ?)
		ON CONFLICT(player_id) DO UPDATE SET balance = excluded.balance, updated_at = CURRENT_TIMESTAMP
	`, playerID, amount)
	if err != nil {
		return fmt.Errorf("%w: write balance: %v", ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO balance_history (player_id, balance, delta)
		VALUES (?, ?, ?)
	`, playerID, amount, amount-previous)
	if err != nil {
		return fmt.Errorf("%w: write history: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

// HistoryEntry is one recorded balance change.
type HistoryEntry struct {
	Balance int
	Delta   int
}

// History returns the recorded changes for a player, oldest first.
func (s *SQLiteStore) History(ctx context.Context, playerID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT balance, delta FROM balance_history WHERE player_id = ? ORDER BY id", playerID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Balance, &e.Delta); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
