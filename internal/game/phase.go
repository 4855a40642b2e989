package game

import "fmt"

// Phase is the stage of the current hand.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhasePreFlop
	PhaseFlop
	PhaseTurn
	PhaseRiver
	PhaseShowdown
	PhaseResult
)

var phaseNames = [...]string{
	PhaseWaiting:  "waiting",
	PhasePreFlop:  "pre-flop",
	PhaseFlop:     "flop",
	PhaseTurn:     "turn",
	PhaseRiver:    "river",
	PhaseShowdown: "showdown",
	PhaseResult:   "result",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Betting reports whether players may act in this phase.
func (p Phase) Betting() bool {
	return p >= PhasePreFlop && p <= PhaseRiver
}

// Revealed reports whether hole cards of live players are public.
func (p Phase) Revealed() bool {
	return p == PhaseShowdown || p == PhaseResult
}

// communityCount is the number of board cards present once a street is dealt.
func (p Phase) communityCount() int {
	switch p {
	case PhaseFlop:
		return 3
	case PhaseTurn:
		return 4
	case PhaseRiver, PhaseShowdown:
		return 5
	}
	return 0
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
