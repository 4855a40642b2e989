package game

import (
	"slices"
)

// Pot is the main pot or a side pot.
type Pot struct {
	Amount   int      `json:"amount"`
	Eligible []string `json:"eligible"`
}

// buildPots splits the chips committed this hand into a main pot and side
// pots by all-in level. Folded players' chips stay in the pots they reached
// but they are eligible for none. Chips nobody else matched end up in a pot
// whose only eligible player is the one who put them in.
func buildPots(committed map[string]int, live func(string) bool, order []string) []Pot {
	levels := make([]int, 0, len(committed))
	for _, amount := range committed {
		if amount > 0 && !slices.Contains(levels, amount) {
			levels = append(levels, amount)
		}
	}
	slices.Sort(levels)

	var pots []Pot
	prev := 0
	for _, level := range levels {
		pot := Pot{}
		for _, p := range order {
			c := committed[p]
			pot.Amount += min(c, level) - min(c, prev)
			if c >= level && live(p) {
				pot.Eligible = append(pot.Eligible, p)
			}
		}
		prev = level

		switch {
		case pot.Amount == 0:
			continue
		case len(pot.Eligible) == 0 && len(pots) > 0:
			// Dead money above every live player's stake.
			pots[len(pots)-1].Amount += pot.Amount
			continue
		case len(pots) > 0 && slices.Equal(pots[len(pots)-1].Eligible, pot.Eligible):
			pots[len(pots)-1].Amount += pot.Amount
			continue
		}
		pots = append(pots, pot)
	}

	if len(pots) > 0 && len(pots[0].Eligible) == 0 {
		// Only reachable when every contributor folded at the lowest level;
		// give the chips to whoever is still live.
		for _, p := range order {
			if live(p) {
				pots[0].Eligible = append(pots[0].Eligible, p)
			}
		}
	}
	return pots
}

// splitPot divides amount among winners, who must already be ordered
// clockwise from the dealer. The remainder goes to the first of them.
func splitPot(amount int, winners []string) map[string]int {
	out := make(map[string]int, len(winners))
	if len(winners) == 0 {
		return out
	}
	share := amount / len(winners)
	for _, w := range winners {
		out[w] = share
	}
	out[winners[0]] += amount % len(winners)
	return out
}
