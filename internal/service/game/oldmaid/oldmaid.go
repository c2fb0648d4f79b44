// Package oldmaid is two-player card elimination. The queen of clubs is taken
// out of the deck, so one queen can never be paired and whoever is left
// holding it loses.
package oldmaid

import (
	"fmt"
	"slices"

	"duel-service/internal/engine"
	"duel-service/internal/rules"
	appErr "duel-service/pkg/errors"
)

const (
	PhaseSelecting = "selecting"
	PhaseResolving = "resolving"
	PhaseGameOver  = "game_over"
)

// OldMaidCard is removed from the deck before dealing.
var OldMaidCard = rules.Card{Rank: rules.Queen, Suit: rules.Clubs}

type Config struct {
	TurnTimeoutTicks int
	// Deck replaces the shuffled deck when set. Cards are dealt in order.
	Deck []rules.Card
}

func DefaultConfig() Config {
	return Config{TurnTimeoutTicks: 30}
}

type Draw struct {
	Round  int  `json:"round"`
	Seat   int  `json:"seat"`
	Paired bool `json:"paired"`
}

type Game struct {
	cfg Config

	phase  string
	round  int
	turn   int
	hands  [2][]rules.Card
	marked int

	// drawn is the card taken this turn, waiting for the pair check.
	drawn     rules.Card
	discarded [2]int
	history   []Draw

	done   bool
	result engine.Result
}

func New(cfg Config) *Game {
	if cfg.TurnTimeoutTicks <= 0 {
		cfg.TurnTimeoutTicks = DefaultConfig().TurnTimeoutTicks
	}
	return &Game{cfg: cfg}
}

func (g *Game) Start(players [2]engine.Player, s engine.Scheduler) error {
	deck := slices.Clone(g.cfg.Deck)
	if deck == nil {
		deck = rules.Without(rules.NewDeck(), OldMaidCard)
		rules.Shuffle(deck, s.Rand())
	}
	for i, c := range deck {
		g.hands[i%2] = append(g.hands[i%2], c)
	}
	for seat := range g.hands {
		var pairs int
		g.hands[seat], pairs = discardPairs(g.hands[seat])
		g.discarded[seat] += pairs
	}
	g.round = 1
	g.turn = 0
	g.marked = -1
	if g.checkEnd() {
		return nil
	}
	g.beginTurn(s)
	return nil
}

func (g *Game) rival() int { return 1 - g.turn }

func (g *Game) beginTurn(s engine.Scheduler) {
	g.phase = PhaseSelecting
	g.marked = -1
	s.StartCountdown(engine.SlotTurn, g.cfg.TurnTimeoutTicks, engine.Signal{Kind: engine.SignalTimeout, Ref: g.round})
}

func (g *Game) HandleAction(seat int, a engine.Action, s engine.Scheduler) error {
	if a.Kind != engine.ActionSelect {
		return fmt.Errorf("%w: %s in oldmaid", appErr.ErrUnknownAction, a.Kind)
	}
	if g.phase != PhaseSelecting {
		return appErr.ErrPhaseClosed
	}
	if seat != g.turn {
		return appErr.ErrInvalidActor
	}
	if a.Index < 0 || a.Index >= len(g.hands[g.rival()]) {
		return fmt.Errorf("%w: card %d", appErr.ErrInvalidSelection, a.Index)
	}
	// The first tap marks a card, a second tap on the same card takes it.
	if g.marked != a.Index {
		g.marked = a.Index
		return nil
	}
	return g.take(s)
}

func (g *Game) take(s engine.Scheduler) error {
	rival := g.rival()
	g.drawn = g.hands[rival][g.marked]
	g.hands[rival] = slices.Delete(g.hands[rival], g.marked, g.marked+1)
	rules.Shuffle(g.hands[rival], s.Rand())
	g.marked = -1
	g.phase = PhaseResolving
	s.ClearCountdown(engine.SlotTurn)
	return s.Emit(engine.Signal{Kind: engine.SignalResolve, Ref: g.round})
}

func (g *Game) HandleSignal(sig engine.Signal, s engine.Scheduler) error {
	if sig.Ref != g.round {
		return nil
	}
	switch sig.Kind {
	case engine.SignalResolve:
		if g.phase == PhaseResolving {
			g.resolve(s)
		}
	case engine.SignalTimeout:
		if g.phase == PhaseSelecting {
			g.finish(engine.WinFor(g.rival(), "timeout"))
		}
	}
	return nil
}

func (g *Game) resolve(s engine.Scheduler) {
	hand := g.hands[g.turn]
	draw := Draw{Round: g.round, Seat: g.turn}
	if i := slices.IndexFunc(hand, func(c rules.Card) bool { return c.Rank == g.drawn.Rank }); i >= 0 {
		g.hands[g.turn] = slices.Delete(hand, i, i+1)
		g.discarded[g.turn]++
		draw.Paired = true
	} else {
		g.hands[g.turn] = append(hand, g.drawn)
	}
	g.history = append(g.history, draw)
	if g.checkEnd() {
		return
	}
	g.round++
	g.turn = g.rival()
	g.beginTurn(s)
}

// checkEnd finishes the game once a hand is empty. Every other rank is paired
// by then, so the remaining hand is the single unmatched queen.
func (g *Game) checkEnd() bool {
	for seat, hand := range g.hands {
		if len(hand) == 0 {
			g.finish(engine.WinFor(seat, "old_maid"))
			return true
		}
	}
	return false
}

func (g *Game) finish(res engine.Result) {
	g.phase = PhaseGameOver
	g.done = true
	g.result = res
}

func (g *Game) Done() bool            { return g.done }
func (g *Game) Result() engine.Result { return g.result }
func (g *Game) State() string         { return g.phase }
func (g *Game) Round() int            { return g.round }

type View struct {
	Phase     string   `json:"phase"`
	Round     int      `json:"round"`
	Turn      int      `json:"turn"`
	HandSizes [2]int   `json:"handSizes"`
	Discarded [2]int   `json:"discarded"`
	Marked    int      `json:"marked"`
	MyHand    []string `json:"myHand,omitempty"`
	History   []Draw   `json:"history"`
}

func (g *Game) View(seat int) any {
	v := View{
		Phase:     g.phase,
		Round:     g.round,
		Turn:      g.turn,
		HandSizes: [2]int{len(g.hands[0]), len(g.hands[1])},
		Discarded: g.discarded,
		Marked:    g.marked,
		History:   slices.Clone(g.history),
	}
	if seat == 0 || seat == 1 {
		v.MyHand = rules.Codes(g.hands[seat])
	}
	return v
}

// discardPairs drops cards two at a time by rank and returns the rest in their
// original order along with the number of pairs removed.
func discardPairs(hand []rules.Card) ([]rules.Card, int) {
	open := make(map[rules.Rank]int)
	var out []rules.Card
	pairs := 0
	for _, c := range hand {
		if i, ok := open[c.Rank]; ok {
			out[i] = rules.Card{}
			delete(open, c.Rank)
			pairs++
			continue
		}
		open[c.Rank] = len(out)
		out = append(out, c)
	}
	return slices.DeleteFunc(out, func(c rules.Card) bool { return c == rules.Card{} }), pairs
}
