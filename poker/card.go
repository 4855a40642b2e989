package poker

import (
	"fmt"
	"strings"
)

// Rank is a card rank from Two (2) to Ace (14).
type Rank uint8

// Suit identifies one of the four suits.
type Suit uint8

const (
	Two   Rank = 2
	Three Rank = 3
	Four  Rank = 4
	Five  Rank = 5
	Six   Rank = 6
	Seven Rank = 7
	Eight Rank = 8
	Nine  Rank = 9
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

var suitGlyphs = [...]string{"♠", "♥", "♦", "♣"}

// Card is an immutable playing card.
type Card struct {
	Rank Rank
	Suit Suit
}

// NewCard returns the card with the given rank and suit.
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// Valid reports whether the card has a legal rank and suit.
func (c Card) Valid() bool {
	return c.Rank >= Two && c.Rank <= Ace && c.Suit <= Clubs
}

func (r Rank) String() string {
	switch r {
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		if r >= Two && r <= Ten {
			return fmt.Sprintf("%d", r)
		}
		return "?"
	}
}

// Name returns the plural English name used in hand descriptions.
func (r Rank) Name() string {
	switch r {
	case Two:
		return "Twos"
	case Three:
		return "Threes"
	case Four:
		return "Fours"
	case Five:
		return "Fives"
	case Six:
		return "Sixes"
	case Seven:
		return "Sevens"
	case Eight:
		return "Eights"
	case Nine:
		return "Nines"
	case Ten:
		return "Tens"
	case Jack:
		return "Jacks"
	case Queen:
		return "Queens"
	case King:
		return "Kings"
	case Ace:
		return "Aces"
	}
	return "Unknown"
}

func (s Suit) String() string {
	if int(s) < len(suitGlyphs) {
		return suitGlyphs[s]
	}
	return "?"
}

// String renders the card as rank followed by a suit glyph, e.g. "10♥".
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// MarshalText implements encoding.TextMarshaler so cards encode as strings.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid card %d/%d", c.Rank, c.Suit)
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard parses a card string. It accepts the glyph form produced by
// String ("10♠", "Q♦") as well as ASCII forms ("Ts", "10s", "qd").
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Card{}, fmt.Errorf("empty card string")
	}

	var rankPart, suitPart string
	for _, glyph := range suitGlyphs {
		if strings.HasSuffix(s, glyph) {
			rankPart, suitPart = strings.TrimSuffix(s, glyph), glyph
			break
		}
	}
	if suitPart == "" {
		rankPart, suitPart = s[:len(s)-1], s[len(s)-1:]
	}

	rank, err := parseRank(rankPart)
	if err != nil {
		return Card{}, fmt.Errorf("parse card %q: %w", s, err)
	}
	suit, err := parseSuit(suitPart)
	if err != nil {
		return Card{}, fmt.Errorf("parse card %q: %w", s, err)
	}
	return NewCard(rank, suit), nil
}

// ParseCards parses each string with ParseCard.
func ParseCards(ss ...string) ([]Card, error) {
	cards := make([]Card, 0, len(ss))
	for _, s := range ss {
		c, err := ParseCard(s)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// MustParseCards is like ParseCards but panics on error. Intended for tests
// and fixed tables.
func MustParseCards(ss ...string) []Card {
	cards, err := ParseCards(ss...)
	if err != nil {
		panic(err)
	}
	return cards
}

func parseRank(s string) (Rank, error) {
	switch strings.ToUpper(s) {
	case "2", "3", "4", "5", "6", "7", "8", "9":
		return Rank(s[0] - '0'), nil
	case "10", "T":
		return Ten, nil
	case "J":
		return Jack, nil
	case "Q":
		return Queen, nil
	case "K":
		return King, nil
	case "A":
		return Ace, nil
	}
	return 0, fmt.Errorf("invalid rank %q", s)
}

func parseSuit(s string) (Suit, error) {
	switch s {
	case "♠", "s", "S":
		return Spades, nil
	case "♥", "h", "H":
		return Hearts, nil
	case "♦", "d", "D":
		return Diamonds, nil
	case "♣", "c", "C":
		return Clubs, nil
	}
	return 0, fmt.Errorf("invalid suit %q", s)
}

// FormatCards renders cards as a slice of strings.
func FormatCards(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
