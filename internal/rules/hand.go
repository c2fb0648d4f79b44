package rules

import (
	"cmp"
	"slices"
)

type HandRank int

const (
	HighCard HandRank = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

var handRankNames = [...]string{
	"high_card", "pair", "two_pair", "three_of_a_kind", "straight",
	"flush", "full_house", "four_of_a_kind", "straight_flush", "royal_flush",
}

func (h HandRank) String() string {
	if h < 0 || int(h) >= len(handRankNames) {
		return "unknown"
	}
	return handRankNames[h]
}

// HandValue is a category plus the ranks that break ties inside it, most
// significant first. Straights carry only their high card; the wheel is 5-high.
type HandValue struct {
	Category HandRank `json:"category"`
	Ranks    []Rank   `json:"ranks"`
}

// Compare returns -1, 0 or 1.
func (v HandValue) Compare(o HandValue) int {
	if c := cmp.Compare(v.Category, o.Category); c != 0 {
		return c
	}
	return slices.Compare(v.Ranks, o.Ranks)
}

type rankGroup struct {
	rank  Rank
	count int
}

// EvaluateHand ranks exactly five cards. It only looks at the values, so the
// same five cards in any order give the same result.
func EvaluateHand(cards [5]Card) HandValue {
	var counts [Ace + 1]int
	flush := true
	for i, c := range cards {
		counts[c.Rank]++
		if i > 0 && c.Suit != cards[0].Suit {
			flush = false
		}
	}

	groups := make([]rankGroup, 0, 5)
	for r := Ace; r >= Two; r-- {
		if counts[r] > 0 {
			groups = append(groups, rankGroup{rank: r, count: counts[r]})
		}
	}
	// Larger groups first, then higher ranks. Ranks were collected descending.
	slices.SortStableFunc(groups, func(a, b rankGroup) int {
		return cmp.Compare(b.count, a.count)
	})

	ranks := make([]Rank, len(groups))
	for i, g := range groups {
		ranks[i] = g.rank
	}

	high, straight := straightHigh(groups)
	switch {
	case straight && flush && high == Ace:
		return HandValue{Category: RoyalFlush, Ranks: []Rank{Ace}}
	case straight && flush:
		return HandValue{Category: StraightFlush, Ranks: []Rank{high}}
	case groups[0].count == 4:
		return HandValue{Category: FourOfAKind, Ranks: ranks}
	case groups[0].count == 3 && groups[1].count == 2:
		return HandValue{Category: FullHouse, Ranks: ranks}
	case flush:
		return HandValue{Category: Flush, Ranks: ranks}
	case straight:
		return HandValue{Category: Straight, Ranks: []Rank{high}}
	case groups[0].count == 3:
		return HandValue{Category: ThreeOfAKind, Ranks: ranks}
	case groups[0].count == 2 && groups[1].count == 2:
		return HandValue{Category: TwoPair, Ranks: ranks}
	case groups[0].count == 2:
		return HandValue{Category: Pair, Ranks: ranks}
	default:
		return HandValue{Category: HighCard, Ranks: ranks}
	}
}

func straightHigh(groups []rankGroup) (Rank, bool) {
	if len(groups) != 5 {
		return 0, false
	}
	top, bottom := groups[0].rank, groups[4].rank
	if top-bottom == 4 {
		return top, true
	}
	// A-2-3-4-5
	if top == Ace && groups[1].rank == Five && bottom == Two {
		return Five, true
	}
	return 0, false
}

// CompareHands evaluates both hands and returns -1, 0 or 1 from a's side.
func CompareHands(a, b [5]Card) int {
	return EvaluateHand(a).Compare(EvaluateHand(b))
}

// HandOf copies the first five cards of a slice into a hand.
func HandOf(cards []Card) (hand [5]Card, ok bool) {
	if len(cards) != 5 {
		return hand, false
	}
	copy(hand[:], cards)
	return hand, true
}
