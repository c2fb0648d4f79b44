// Package showdown is five-card draw between two seats. Each round both
// players may swap any of their cards once before the hands are compared.
package showdown

import (
	"fmt"
	"slices"

	"duel-service/internal/engine"
	"duel-service/internal/rules"
	appErr "duel-service/pkg/errors"
)

const (
	PhaseDrawing   = "drawing"
	PhaseResolving = "resolving"
	PhaseRoundOver = "round_over"
	PhaseGameOver  = "game_over"
)

const handSize = 5

type Config struct {
	RoundsToWin      int
	MaxRounds        int
	DrawTimeoutTicks int
	RoundDelayTicks  int
	// Deck replaces the shuffled deck of every round when set. Seats are dealt
	// alternately and replacements come off the top of what is left.
	Deck []rules.Card
}

func DefaultConfig() Config {
	return Config{
		RoundsToWin:      2,
		MaxRounds:        3,
		DrawTimeoutTicks: 30,
		RoundDelayTicks:  3,
	}
}

type RoundResult struct {
	Round  int         `json:"round"`
	Winner int         `json:"winner"`
	Hands  [2][]string `json:"hands"`
	Ranks  [2]string   `json:"ranks"`
}

type Game struct {
	cfg Config

	phase     string
	round     int
	deck      []rules.Card
	hands     [2][handSize]rules.Card
	marks     [2][handSize]bool
	confirmed [2]bool
	wins      [2]int
	history   []RoundResult

	done   bool
	result engine.Result
}

func New(cfg Config) *Game {
	def := DefaultConfig()
	if cfg.RoundsToWin <= 0 {
		cfg.RoundsToWin = def.RoundsToWin
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.DrawTimeoutTicks <= 0 {
		cfg.DrawTimeoutTicks = def.DrawTimeoutTicks
	}
	if cfg.RoundDelayTicks <= 0 {
		cfg.RoundDelayTicks = def.RoundDelayTicks
	}
	return &Game{cfg: cfg}
}

func (g *Game) Start(players [2]engine.Player, s engine.Scheduler) error {
	g.round = 1
	return g.beginRound(s)
}

func (g *Game) beginRound(s engine.Scheduler) error {
	g.deck = slices.Clone(g.cfg.Deck)
	if g.deck == nil {
		g.deck = rules.NewDeck()
		rules.Shuffle(g.deck, s.Rand())
	}
	if len(g.deck) < 2*handSize {
		return fmt.Errorf("showdown deck has %d cards, need %d", len(g.deck), 2*handSize)
	}
	for i := 0; i < 2*handSize; i++ {
		g.hands[i%2][i/2] = g.deck[i]
	}
	g.deck = g.deck[2*handSize:]
	g.marks = [2][handSize]bool{}
	g.confirmed = [2]bool{}
	g.phase = PhaseDrawing
	s.StartCountdown(engine.SlotTurn, g.cfg.DrawTimeoutTicks, engine.Signal{Kind: engine.SignalTimeout, Ref: g.round})
	return nil
}

func (g *Game) HandleAction(seat int, a engine.Action, s engine.Scheduler) error {
	switch a.Kind {
	case engine.ActionSelect:
		if err := g.ready(seat); err != nil {
			return err
		}
		if a.Index < 0 || a.Index >= handSize {
			return fmt.Errorf("%w: card %d", appErr.ErrInvalidSelection, a.Index)
		}
		g.marks[seat][a.Index] = !g.marks[seat][a.Index]
		return nil
	case engine.ActionConfirm:
		if err := g.ready(seat); err != nil {
			return err
		}
		g.replace(seat)
		return g.stand(seat, s)
	default:
		return fmt.Errorf("%w: %s in showdown", appErr.ErrUnknownAction, a.Kind)
	}
}

func (g *Game) ready(seat int) error {
	if g.phase != PhaseDrawing {
		return appErr.ErrPhaseClosed
	}
	if g.confirmed[seat] {
		return appErr.ErrDuplicateAction
	}
	return nil
}

// replace swaps every marked card for the next one in the deck. Marks beyond
// what the deck can cover are dropped.
func (g *Game) replace(seat int) {
	for i, marked := range g.marks[seat] {
		if !marked || len(g.deck) == 0 {
			continue
		}
		g.hands[seat][i] = g.deck[0]
		g.deck = g.deck[1:]
	}
	g.marks[seat] = [handSize]bool{}
}

func (g *Game) stand(seat int, s engine.Scheduler) error {
	g.confirmed[seat] = true
	if !g.confirmed[0] || !g.confirmed[1] {
		return nil
	}
	s.ClearCountdown(engine.SlotTurn)
	g.phase = PhaseResolving
	return s.Emit(engine.Signal{Kind: engine.SignalResolve, Ref: g.round})
}

func (g *Game) HandleSignal(sig engine.Signal, s engine.Scheduler) error {
	if sig.Ref != g.round {
		return nil
	}
	switch sig.Kind {
	case engine.SignalTimeout:
		if g.phase != PhaseDrawing {
			return nil
		}
		// Anyone still deciding stands pat.
		for seat := range g.confirmed {
			if !g.confirmed[seat] {
				g.marks[seat] = [handSize]bool{}
				if err := g.stand(seat, s); err != nil {
					return err
				}
			}
		}
	case engine.SignalResolve:
		if g.phase == PhaseResolving {
			g.resolve(s)
		}
	case engine.SignalNextRound:
		if g.phase == PhaseRoundOver {
			g.round++
			return g.beginRound(s)
		}
	}
	return nil
}

func (g *Game) resolve(s engine.Scheduler) {
	res := rules.ShowdownOutcome(g.hands[0], g.hands[1])
	g.history = append(g.history, RoundResult{
		Round:  g.round,
		Winner: res.Winner,
		Hands:  [2][]string{rules.Codes(g.hands[0][:]), rules.Codes(g.hands[1][:])},
		Ranks:  [2]string{res.Hands[0].Category.String(), res.Hands[1].Category.String()},
	})
	if res.Winner >= 0 {
		g.wins[res.Winner]++
		if g.wins[res.Winner] >= g.cfg.RoundsToWin {
			g.finish(engine.WinFor(res.Winner, "hands"))
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

type View struct {
	Phase     string        `json:"phase"`
	Round     int           `json:"round"`
	Wins      [2]int        `json:"wins"`
	Confirmed [2]bool       `json:"confirmed"`
	MyHand    []string      `json:"myHand,omitempty"`
	MyMarks   []bool        `json:"myMarks,omitempty"`
	History   []RoundResult `json:"history"`
}

func (g *Game) View(seat int) any {
	v := View{
		Phase:     g.phase,
		Round:     g.round,
		Wins:      g.wins,
		Confirmed: g.confirmed,
		History:   slices.Clone(g.history),
	}
	if seat == 0 || seat == 1 {
		v.MyHand = rules.Codes(g.hands[seat][:])
		v.MyMarks = slices.Clone(g.marks[seat][:])
	}
	return v
}
