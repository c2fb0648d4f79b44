package rules

import (
	"fmt"
	mrand "math/rand"
	"strings"
)

// Card format: Rank + Suit (e.g. "As", "Td", "2c").
// Ranks: 2..9, T, J, Q, K, A. Suits: c, d, h, s.

type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

const suitLetters = "cdhs"

func (s Suit) String() string {
	if int(s) >= len(suitLetters) {
		return "?"
	}
	return suitLetters[s : s+1]
}

// Rank runs from Two (2) to Ace (14).
type Rank uint8

const (
	Two Rank = iota + 2
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

const rankLetters = "23456789TJQKA"

func (r Rank) String() string {
	if r < Two || r > Ace {
		return "?"
	}
	i := int(r - Two)
	return rankLetters[i : i+1]
}

type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c Card) String() string { return c.Rank.String() + c.Suit.String() }

func (c Card) Valid() bool { return c.Rank >= Two && c.Rank <= Ace && c.Suit <= Spades }

// ParseCard reads the two-letter form, e.g. "Qh".
func ParseCard(code string) (Card, error) {
	if len(code) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", code)
	}
	r := strings.IndexByte(rankLetters, strings.ToUpper(code[:1])[0])
	s := strings.IndexByte(suitLetters, strings.ToLower(code[1:])[0])
	if r < 0 || s < 0 {
		return Card{}, fmt.Errorf("invalid card %q", code)
	}
	return Card{Rank: Rank(r) + Two, Suit: Suit(s)}, nil
}

// MustParseCards is for fixtures and tables.
func MustParseCards(codes ...string) []Card {
	cards := make([]Card, len(codes))
	for i, code := range codes {
		c, err := ParseCard(code)
		if err != nil {
			panic(err)
		}
		cards[i] = c
	}
	return cards
}

// NewDeck returns the 52 cards in a fixed order.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for s := Clubs; s <= Spades; s++ {
		for r := Two; r <= Ace; r++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// Shuffle permutes cards in place with the session's generator so games stay
// reproducible for a given seed.
func Shuffle(cards []Card, rng *mrand.Rand) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Without returns a copy of deck minus every card equal to one of drop.
func Without(deck []Card, drop ...Card) []Card {
	out := make([]Card, 0, len(deck))
next:
	for _, c := range deck {
		for _, d := range drop {
			if c == d {
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}

// Codes renders cards in their two-letter form.
func Codes(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
