package poker

import (
	"testing"

	"github.com/lox/pokertables/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckHasUniqueCards(t *testing.T) {
	t.Parallel()

	deck := NewDeck(randutil.New(42))
	seen := make(map[Card]bool, DeckSize)
	for deck.Remaining() > 0 {
		c := deck.Draw()
		require.True(t, c.Valid(), "invalid card %v", c)
		require.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, DeckSize)
}

func TestDeckDeterministicWithSeed(t *testing.T) {
	t.Parallel()

	a := NewDeck(randutil.New(7)).DrawN(10)
	b := NewDeck(randutil.New(7)).DrawN(10)
	c := NewDeck(randutil.New(8)).DrawN(10)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDeckSecureSeedsDiffer(t *testing.T) {
	t.Parallel()

	a := NewDeck(randutil.NewSecure()).DrawN(DeckSize)
	b := NewDeck(randutil.NewSecure()).DrawN(DeckSize)
	assert.NotEqual(t, a, b)
}

func TestDeckBurnAndRemaining(t *testing.T) {
	t.Parallel()

	deck := NewDeck(randutil.New(1))
	deck.Burn()
	deck.DrawN(3)
	assert.Equal(t, DeckSize-4, deck.Remaining())
}

func TestDeckDrawPanicsWhenExhausted(t *testing.T) {
	t.Parallel()

	deck := NewDeck(randutil.New(1))
	deck.DrawN(DeckSize)
	assert.Panics(t, func() { deck.Draw() })
}

func TestMaxSeatsPerDeck(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 22, MaxSeatsPerDeck)
	assert.LessOrEqual(t, 2*MaxSeatsPerDeck+5+3, DeckSize)
}

func TestStackedDeck(t *testing.T) {
	t.Parallel()

	cards := MustParseCards("A♠", "K♠", "2♦")
	deck := NewStackedDeck(cards...)
	assert.Equal(t, 3, deck.Remaining())
	assert.Equal(t, cards, deck.DrawN(3))
	assert.Panics(t, func() { deck.Draw() })
}
