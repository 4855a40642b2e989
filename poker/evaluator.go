package poker

import (
	"fmt"
	"slices"
)

// Category enumerates hand categories ordered from weakest to strongest.
type Category uint8

const (
	HighCard Category = iota
	Pair
	TwoPair
	Trips
	Straight
	Flush
	FullHouse
	Quads
	StraightFlush
)

func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case Trips:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case Quads:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// HandRank is the comparable value of the best five-card hand.
// Tiebreakers are compared element-wise after Category.
type HandRank struct {
	Category    Category
	Tiebreakers []Rank
}

// String returns a human-readable hand description.
func (hr HandRank) String() string {
	tb := hr.Tiebreakers
	if len(tb) == 0 {
		return hr.Category.String()
	}
	switch hr.Category {
	case StraightFlush, Straight:
		return fmt.Sprintf("%s, %s high", hr.Category, tb[0])
	case Quads, Trips, Pair:
		return fmt.Sprintf("%s, %s", hr.Category, tb[0].Name())
	case FullHouse:
		return fmt.Sprintf("Full House, %s over %s", tb[0].Name(), tb[1].Name())
	case TwoPair:
		return fmt.Sprintf("Two Pair, %s and %s", tb[0].Name(), tb[1].Name())
	case Flush, HighCard:
		return fmt.Sprintf("%s, %s high", hr.Category, tb[0])
	}
	return hr.Category.String()
}

// Ordering is the result of Compare.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// Compare orders a relative to b: category first, then tiebreakers.
func Compare(a, b HandRank) Ordering {
	if a.Category != b.Category {
		if a.Category > b.Category {
			return Greater
		}
		return Less
	}
	for i := 0; i < len(a.Tiebreakers) && i < len(b.Tiebreakers); i++ {
		switch {
		case a.Tiebreakers[i] > b.Tiebreakers[i]:
			return Greater
		case a.Tiebreakers[i] < b.Tiebreakers[i]:
			return Less
		}
	}
	return Equal
}

// Evaluate returns the rank of the best five-card hand within 5 to 7 cards.
// A wrong card count, an invalid card or a duplicate is a programming error
// and panics.
func Evaluate(cards ...Card) HandRank {
	if len(cards) < 5 || len(cards) > 7 {
		panic(fmt.Sprintf("poker: evaluate needs 5-7 cards, got %d", len(cards)))
	}

	var (
		counts  [Ace + 1]int
		bySuit  [4][]Rank
		seen    = make(map[Card]struct{}, len(cards))
		present uint16
	)
	for _, c := range cards {
		if !c.Valid() {
			panic(fmt.Sprintf("poker: invalid card %v", c))
		}
		if _, dup := seen[c]; dup {
			panic(fmt.Sprintf("poker: duplicate card %s", c))
		}
		seen[c] = struct{}{}
		counts[c.Rank]++
		bySuit[c.Suit] = append(bySuit[c.Suit], c.Rank)
		present |= 1 << c.Rank
	}

	var flush []Rank
	for _, ranks := range bySuit {
		if len(ranks) < 5 {
			continue
		}
		var mask uint16
		for _, r := range ranks {
			mask |= 1 << r
		}
		if high, ok := straightHigh(mask); ok {
			return HandRank{Category: StraightFlush, Tiebreakers: []Rank{high}}
		}
		flush = slices.SortedFunc(slices.Values(ranks), descending)[:5]
	}

	var quads, trips, pairs, singles []Rank
	for r := Ace; r >= Two; r-- {
		switch counts[r] {
		case 4:
			quads = append(quads, r)
		case 3:
			trips = append(trips, r)
		case 2:
			pairs = append(pairs, r)
		case 1:
			singles = append(singles, r)
		}
	}

	if len(quads) > 0 {
		q := quads[0]
		return HandRank{Category: Quads, Tiebreakers: []Rank{q, highestExcept(counts, q)}}
	}

	if len(trips) > 0 && (len(trips) > 1 || len(pairs) > 0) {
		pair := Rank(0)
		if len(pairs) > 0 {
			pair = pairs[0]
		}
		if len(trips) > 1 && trips[1] > pair {
			pair = trips[1]
		}
		return HandRank{Category: FullHouse, Tiebreakers: []Rank{trips[0], pair}}
	}

	if flush != nil {
		return HandRank{Category: Flush, Tiebreakers: flush}
	}

	if high, ok := straightHigh(present); ok {
		return HandRank{Category: Straight, Tiebreakers: []Rank{high}}
	}

	if len(trips) > 0 {
		return HandRank{Category: Trips, Tiebreakers: append([]Rank{trips[0]}, kickers(counts, 2, trips[0])...)}
	}

	if len(pairs) >= 2 {
		hi, lo := pairs[0], pairs[1]
		return HandRank{Category: TwoPair, Tiebreakers: append([]Rank{hi, lo}, kickers(counts, 1, hi, lo)...)}
	}

	if len(pairs) == 1 {
		return HandRank{Category: Pair, Tiebreakers: append([]Rank{pairs[0]}, kickers(counts, 3, pairs[0])...)}
	}

	return HandRank{Category: HighCard, Tiebreakers: slices.Clone(singles[:5])}
}

func descending(a, b Rank) int {
	return int(b) - int(a)
}

// straightHigh finds the highest five-rank run in mask, counting the ace as
// low for the wheel (A-2-3-4-5, high card Five).
func straightHigh(mask uint16) (Rank, bool) {
	if mask&(1<<Ace) != 0 {
		mask |= 1 << 1
	}
	for high := Ace; high >= Five; high-- {
		run := uint16(0x1f) << (high - 4)
		if mask&run == run {
			return high, true
		}
	}
	return 0, false
}

func highestExcept(counts [Ace + 1]int, exclude Rank) Rank {
	for r := Ace; r >= Two; r-- {
		if r != exclude && counts[r] > 0 {
			return r
		}
	}
	return 0
}

// kickers returns the n highest ranks not in exclude, one per rank.
func kickers(counts [Ace + 1]int, n int, exclude ...Rank) []Rank {
	out := make([]Rank, 0, n)
	for r := Ace; r >= Two && len(out) < n; r-- {
		if counts[r] > 0 && !slices.Contains(exclude, r) {
			out = append(out, r)
		}
	}
	return out
}
