package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/pokertables/internal/game"
)

// AnySeat asks Join for the first free seat.
const AnySeat = -1

// Join seats playerID at tableID with deposit chips taken from their
// balance. A player holds at most one seat across all tables. The rest of
// the balance stays in the seat's reserve and is persisted with the stack.
func (r *Registry) Join(ctx context.Context, tableID, playerID, username string, deposit, seat int) (int, error) {
	t, ok := r.Get(tableID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	tier := t.Tier()
	if deposit < tier.MinBuyIn || deposit > tier.MaxBuyIn {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrBuyInOutOfRange, deposit, tier.MinBuyIn, tier.MaxBuyIn)
	}

	if err := r.reserve(playerID, tableID); err != nil {
		return 0, err
	}
	seated := false
	defer func() {
		if !seated {
			r.release(playerID, tableID)
		}
	}()

	wallet, err := r.balances.GetBalance(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if wallet < deposit {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, wallet, deposit)
	}

	var joinErr error
	err = t.Do(func(s *Session) {
		e := t.engine
		if seat == AnySeat {
			if seat = e.FreeSeat(); seat < 0 {
				joinErr = ErrTableFull
				return
			}
		}
		if err := e.Sit(seat, playerID, username, deposit, wallet-deposit); err != nil {
			joinErr = mapSeatError(err)
			return
		}
		// Seated players count as away until a connection is registered.
		if !s.connected(playerID) {
			e.SetAway(t.clock.Now(), playerID, true)
		}
		t.used = true
		seated = true
		t.logger.Info("Player joined", "player", playerID, "seat", seat, "buy_in", deposit, "reserve", wallet-deposit)
		t.apply(game.Outcome{Accepted: true})
	})
	if err != nil {
		return 0, err
	}
	if joinErr != nil {
		return 0, joinErr
	}
	return seat, nil
}

func mapSeatError(err error) error {
	switch {
	case errors.Is(err, game.ErrInvalidSeat):
		return fmt.Errorf("%w: %v", ErrInvalidSeat, err)
	case errors.Is(err, game.ErrSeatTaken):
		return fmt.Errorf("%w: %v", ErrSeatTaken, err)
	case errors.Is(err, game.ErrAlreadySeated):
		return ErrAlreadySeated
	}
	return err
}

// Leave unseats playerID from tableID and returns the chips they had on
// the table. A player in a hand forfeits it. The full balance, reserve
// plus stack, is queued for persistence.
func (r *Registry) Leave(_ context.Context, tableID, playerID string) (int, error) {
	t, ok := r.Get(tableID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}

	var (
		returned int
		leaveErr error
	)
	err := t.Do(func(*Session) {
		seat, out, err := t.engine.Leave(t.clock.Now(), playerID)
		if err != nil {
			leaveErr = ErrNotSeated
			return
		}
		returned = seat.Stack
		t.apply(out)
	})
	if err != nil {
		return 0, err
	}
	return returned, leaveErr
}

// Users returns the occupied seats of tableID.
func (r *Registry) Users(tableID string) ([]game.Seat, error) {
	t, ok := r.Get(tableID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	var seats []game.Seat
	err := t.Do(func(s *Session) {
		for _, seat := range s.State().Seats {
			if seat.Occupied() {
				seats = append(seats, seat)
			}
		}
	})
	return seats, err
}

// Stack returns playerID's chips on their current table.
func (r *Registry) Stack(playerID string) (int, bool) {
	tableID, ok := r.TableOf(playerID)
	if !ok {
		return 0, false
	}
	t, ok := r.Get(tableID)
	if !ok {
		return 0, false
	}
	var (
		stack int
		found bool
	)
	_ = t.Do(func(s *Session) {
		if seat, ok := s.State().Seat(playerID); ok {
			stack, found = seat.Stack, true
		}
	})
	return stack, found
}
