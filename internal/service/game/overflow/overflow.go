// Package overflow is the shared-total card race. Players take turns playing a
// card onto one running total; pushing it past the target loses the round and
// landing on it exactly wins the round.
package overflow

import (
	"fmt"
	"slices"

	"duel-service/internal/engine"
	"duel-service/internal/rules"
	appErr "duel-service/pkg/errors"
)

const (
	PhasePlaying   = "playing"
	PhaseRoundOver = "round_over"
	PhaseGameOver  = "game_over"
)

type Config struct {
	Target           int
	HandSize         int
	RoundsToWin      int
	MaxRounds        int
	TurnTimeoutTicks int
	RoundDelayTicks  int
	// Deck replaces the shuffled deck of every round when set.
	Deck []rules.Card
}

func DefaultConfig() Config {
	return Config{
		Target:           21,
		HandSize:         3,
		RoundsToWin:      3,
		MaxRounds:        9,
		TurnTimeoutTicks: 20,
		RoundDelayTicks:  3,
	}
}

// Value is a card's contribution to the total: aces count one, faces ten.
func Value(c rules.Card) int {
	switch {
	case c.Rank == rules.Ace:
		return 1
	case c.Rank >= rules.Ten:
		return 10
	default:
		return int(c.Rank)
	}
}

type RoundResult struct {
	Round int `json:"round"`
	// Winner is -1 for a drawn round.
	Winner int    `json:"winner"`
	Reason string `json:"reason"`
	Total  int    `json:"total"`
}

type Game struct {
	cfg Config

	phase   string
	round   int
	turn    int
	total   int
	hands   [2][]rules.Card
	deck    []rules.Card
	plays   []string
	wins    [2]int
	history []RoundResult

	done   bool
	result engine.Result
}

func New(cfg Config) *Game {
	def := DefaultConfig()
	if cfg.Target <= 0 {
		cfg.Target = def.Target
	}
	if cfg.HandSize <= 0 {
		cfg.HandSize = def.HandSize
	}
	if cfg.RoundsToWin <= 0 {
		cfg.RoundsToWin = def.RoundsToWin
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.TurnTimeoutTicks <= 0 {
		cfg.TurnTimeoutTicks = def.TurnTimeoutTicks
	}
	if cfg.RoundDelayTicks <= 0 {
		cfg.RoundDelayTicks = def.RoundDelayTicks
	}
	return &Game{cfg: cfg}
}

func (g *Game) Start(players [2]engine.Player, s engine.Scheduler) error {
	g.round = 1
	g.beginRound(s)
	return nil
}

func (g *Game) beginRound(s engine.Scheduler) {
	g.deck = slices.Clone(g.cfg.Deck)
	if g.deck == nil {
		g.deck = rules.NewDeck()
		rules.Shuffle(g.deck, s.Rand())
	}
	g.hands = [2][]rules.Card{}
	for i := 0; i < g.cfg.HandSize; i++ {
		for seat := range g.hands {
			if c, ok := g.nextCard(); ok {
				g.hands[seat] = append(g.hands[seat], c)
			}
		}
	}
	g.total = 0
	g.plays = nil
	// Seat 0 opens odd rounds.
	g.turn = (g.round - 1) % 2
	g.phase = PhasePlaying
	g.armTurn(s)
}

func (g *Game) nextCard() (rules.Card, bool) {
	if len(g.deck) == 0 {
		return rules.Card{}, false
	}
	c := g.deck[0]
	g.deck = g.deck[1:]
	return c, true
}

func (g *Game) armTurn(s engine.Scheduler) {
	s.StartCountdown(engine.SlotTurn, g.cfg.TurnTimeoutTicks, engine.Signal{Kind: engine.SignalTimeout, Ref: g.round})
}

func (g *Game) HandleAction(seat int, a engine.Action, s engine.Scheduler) error {
	if a.Kind != engine.ActionPlay {
		return fmt.Errorf("%w: %s in overflow", appErr.ErrUnknownAction, a.Kind)
	}
	if g.phase != PhasePlaying {
		return appErr.ErrPhaseClosed
	}
	if seat != g.turn {
		return appErr.ErrInvalidActor
	}
	hand := g.hands[seat]
	if a.Index < 0 || a.Index >= len(hand) {
		return fmt.Errorf("%w: card %d", appErr.ErrInvalidSelection, a.Index)
	}

	card := hand[a.Index]
	g.hands[seat] = slices.Delete(hand, a.Index, a.Index+1)
	if c, ok := g.nextCard(); ok {
		g.hands[seat] = append(g.hands[seat], c)
	}
	g.total += Value(card)
	g.plays = append(g.plays, card.String())

	switch {
	case g.total > g.cfg.Target:
		g.endRound(s, 1-seat, "bust")
	case g.total == g.cfg.Target:
		g.endRound(s, seat, "exact")
	case len(g.hands[0]) == 0 && len(g.hands[1]) == 0:
		g.endRound(s, engine.NoWinner, "exhausted")
	default:
		g.turn ^= 1
		if len(g.hands[g.turn]) == 0 {
			g.turn ^= 1
		}
		g.armTurn(s)
	}
	return nil
}

func (g *Game) HandleSignal(sig engine.Signal, s engine.Scheduler) error {
	if sig.Ref != g.round {
		return nil
	}
	switch sig.Kind {
	case engine.SignalTimeout:
		if g.phase == PhasePlaying {
			g.endRound(s, 1-g.turn, "timeout")
		}
	case engine.SignalNextRound:
		if g.phase == PhaseRoundOver {
			g.round++
			g.beginRound(s)
		}
	}
	return nil
}

func (g *Game) endRound(s engine.Scheduler, winner int, reason string) {
	s.ClearCountdown(engine.SlotTurn)
	g.history = append(g.history, RoundResult{Round: g.round, Winner: winner, Reason: reason, Total: g.total})
	if winner != engine.NoWinner {
		g.wins[winner]++
		if g.wins[winner] >= g.cfg.RoundsToWin {
			g.finish(engine.WinFor(winner, "rounds"))
			return
		}
	}
	if g.round >= g.cfg.MaxRounds {
		switch {
		case g.wins[0] > g.wins[1]:
			g.finish(engine.WinFor(0, "max_rounds"))
		case g.wins[1] > g.wins[0]:
			g.finish(engine.WinFor(1, "max_rounds"))
		default:
			g.finish(engine.Draw("max_rounds"))
		}
		return
	}
	g.phase = PhaseRoundOver
	s.StartCountdown(engine.SlotPhase, g.cfg.RoundDelayTicks, engine.Signal{Kind: engine.SignalNextRound, Ref: g.round})
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

// Total is the running sum of the current round.
func (g *Game) Total() int { return g.total }

type View struct {
	Phase     string        `json:"phase"`
	Round     int           `json:"round"`
	Turn      int           `json:"turn"`
	Total     int           `json:"total"`
	Target    int           `json:"target"`
	Wins      [2]int        `json:"wins"`
	HandSizes [2]int        `json:"handSizes"`
	DeckLeft  int           `json:"deckLeft"`
	Plays     []string      `json:"plays"`
	MyHand    []string      `json:"myHand,omitempty"`
	History   []RoundResult `json:"history"`
}

func (g *Game) View(seat int) any {
	v := View{
		Phase:     g.phase,
		Round:     g.round,
		Turn:      g.turn,
		Total:     g.total,
		Target:    g.cfg.Target,
		Wins:      g.wins,
		HandSizes: [2]int{len(g.hands[0]), len(g.hands[1])},
		DeckLeft:  len(g.deck),
		Plays:     slices.Clone(g.plays),
		History:   slices.Clone(g.history),
	}
	if seat == 0 || seat == 1 {
		v.MyHand = rules.Codes(g.hands[seat])
	}
	return v
}
