package poker

import (
	"fmt"
	rand "math/rand/v2"
)

// DeckSize is the number of cards in a standard deck.
const DeckSize = 52

// Deck is a shuffled 52-card deck consumed from the top. A deck belongs to
// exactly one hand and is discarded when the hand ends.
type Deck struct {
	cards [DeckSize]Card
	next  int
}

// NewDeck creates a deck shuffled with the given random source.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{}

	i := 0
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards[i] = NewCard(rank, suit)
			i++
		}
	}

	// Fisher-Yates
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return d
}

// Draw removes and returns the top card. Drawing from an empty deck is a
// configuration bug (too many seats for one deck) and panics.
func (d *Deck) Draw() Card {
	if d.next >= len(d.cards) {
		panic(fmt.Sprintf("poker: draw from exhausted deck (%d cards dealt)", d.next))
	}
	c := d.cards[d.next]
	d.next++
	return c
}

// DrawN draws n cards from the top of the deck.
func (d *Deck) DrawN(n int) []Card {
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = d.Draw()
	}
	return cards
}

// Burn discards the top card.
func (d *Deck) Burn() {
	d.Draw()
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}

// MaxSeatsPerDeck is the largest seat count a single deck can always serve:
// two hole cards per seat, five community cards and three burns.
const MaxSeatsPerDeck = (DeckSize - 5 - 3) / 2

// NewStackedDeck returns a deck that deals the given cards in order. It is
// used to replay recorded hands and to script deals in tests.
func NewStackedDeck(cards ...Card) *Deck {
	if len(cards) > DeckSize {
		panic("poker: stacked deck larger than 52 cards")
	}
	d := &Deck{next: DeckSize - len(cards)}
	copy(d.cards[d.next:], cards)
	return d
}
