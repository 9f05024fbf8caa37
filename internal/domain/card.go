package domain

import "fmt"

// DeckSize is the number of cards in a standard deck.
const DeckSize = 52

// Seating limits for hold'em tables.
const (
	MinSeats = 2
	MaxSeats = 9
)

// Suit is one of the four card suits.
type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

var suitChars = [...]byte{'c', 'd', 'h', 's'}

func (s Suit) Valid() bool { return s <= Spades }

func (s Suit) String() string {
	if !s.Valid() {
		return "?"
	}
	return string(suitChars[s])
}

// Rank is a card rank from Two through Ace.
type Rank uint8

const (
	Two Rank = iota
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var rankChars = [...]byte{'2', '3', '4', '5', '6', '7', '8', '9', 'T', 'J', 'Q', 'K', 'A'}

func (r Rank) Valid() bool { return r <= Ace }

func (r Rank) String() string {
	if !r.Valid() {
		return "?"
	}
	return string(rankChars[r])
}

// Card is a deck index in [0, 52): suit*13 + rank.
type Card uint8

// NewCard builds the card for rank r of suit s.
func NewCard(r Rank, s Suit) Card {
	return Card(uint8(s)*13 + uint8(r))
}

func (c Card) Valid() bool { return c < DeckSize }
func (c Card) Rank() Rank  { return Rank(c % 13) }
func (c Card) Suit() Suit  { return Suit(c / 13) }

// String renders the card as rank then suit, e.g. "As" or "Td".
func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return c.Rank().String() + c.Suit().String()
}

// ParseCard parses the two-character form produced by String.
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("%w: card %q", ErrInvalidInput, s)
	}
	r, s2 := -1, -1
	for i, ch := range rankChars {
		if ch == s[0] {
			r = i
		}
	}
	for i, ch := range suitChars {
		if ch == s[1] {
			s2 = i
		}
	}
	if r < 0 || s2 < 0 {
		return 0, fmt.Errorf("%w: card %q", ErrInvalidInput, s)
	}
	return NewCard(Rank(r), Suit(s2)), nil
}

// MarshalText encodes the card in its two-character form.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: card index %d", ErrInvalidInput, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes the two-character form.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
