package game

import (
	"fmt"
	"strings"
)

// Action is one of Fold, Check, Call, Bet or Raise.
type Action interface {
	// Name is the wire name of the action.
	Name() string
	isAction()
}

// Fold gives up the hand.
type Fold struct{}

// Check passes when nothing is owed.
type Check struct{}

// Call matches the current bet, or goes all-in for less.
type Call struct{}

// Bet opens the betting on a street with no outstanding wager.
type Bet struct {
	Amount int
}

// Raise lifts the current bet to To, measured as the player's total
// contribution for the street.
type Raise struct {
	To int
}

func (Fold) Name() string  { return "fold" }
func (Check) Name() string { return "check" }
func (Call) Name() string  { return "call" }
func (Bet) Name() string   { return "bet" }
func (Raise) Name() string { return "raise" }

func (Fold) isAction()  {}
func (Check) isAction() {}
func (Call) isAction()  {}
func (Bet) isAction()   {}
func (Raise) isAction() {}

func (b Bet) String() string   { return fmt.Sprintf("bet %d", b.Amount) }
func (r Raise) String() string { return fmt.Sprintf("raise to %d", r.To) }

// ParseAction converts a wire action name and amount into an Action.
// The amount is ignored for actions that carry none.
func ParseAction(name string, amount int) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fold":
		return Fold{}, nil
	case "check":
		return Check{}, nil
	case "call":
		return Call{}, nil
	case "bet":
		return Bet{Amount: amount}, nil
	case "raise":
		return Raise{To: amount}, nil
	}
	return nil, fmt.Errorf("unknown action %q", name)
}
