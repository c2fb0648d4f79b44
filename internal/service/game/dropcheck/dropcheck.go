// Package dropcheck is the drop/check duel. Each round the dropper hides a trap
// in one of the slots and the checker opens one. Finding the trap forces a
// revive roll that gets deadlier with every earlier failure.
package dropcheck

import (
	"fmt"

	"duel-service/internal/engine"
	"duel-service/internal/rules"
	appErr "duel-service/pkg/errors"
)

const (
	PhaseHand     = "hand"
	PhaseDropped  = "dropped"
	PhaseChecked  = "checked"
	PhaseReviving = "reviving"
	PhaseContinue = "continue"
	PhaseGameOver = "game_over"
)

type Config struct {
	Slots                int
	MaxStrikes           int
	MaxRounds            int
	ReviveBaseChance     int
	ReviveStepChance     int
	RoundTimeoutTicks    int
	ReviveTimeoutTicks   int
	ContinueTimeoutTicks int
}

func DefaultConfig() Config {
	return Config{
		Slots:                5,
		MaxStrikes:           2,
		MaxRounds:            10,
		ReviveBaseChance:     20,
		ReviveStepChance:     20,
		RoundTimeoutTicks:    30,
		ReviveTimeoutTicks:   15,
		ContinueTimeoutTicks: 30,
	}
}

type RoundResult struct {
	Round      int    `json:"round"`
	Dropper    int    `json:"dropper"`
	Drop       int    `json:"drop"`
	Check      int    `json:"check"`
	Outcome    string `json:"outcome"`
	DeathOdds  int    `json:"deathOdds,omitempty"`
	ReviveRoll int    `json:"reviveRoll,omitempty"`
	Died       bool   `json:"died,omitempty"`
	// Struck is the idle seat when the round timed out, otherwise -1.
	Struck int `json:"struck"`
}

type Game struct {
	cfg Config

	phase   string
	round   int
	dropper int

	drop  int
	check int

	strikes   [2]int
	failures  [2]int
	continued [2]bool

	current *RoundResult
	history []RoundResult

	done   bool
	result engine.Result
}

func New(cfg Config) *Game {
	def := DefaultConfig()
	if cfg.Slots < 2 {
		cfg.Slots = def.Slots
	}
	if cfg.MaxStrikes <= 0 {
		cfg.MaxStrikes = def.MaxStrikes
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.ReviveBaseChance <= 0 {
		cfg.ReviveBaseChance = def.ReviveBaseChance
	}
	if cfg.ReviveStepChance < 0 {
		cfg.ReviveStepChance = def.ReviveStepChance
	}
	if cfg.RoundTimeoutTicks <= 0 {
		cfg.RoundTimeoutTicks = def.RoundTimeoutTicks
	}
	if cfg.ReviveTimeoutTicks <= 0 {
		cfg.ReviveTimeoutTicks = def.ReviveTimeoutTicks
	}
	if cfg.ContinueTimeoutTicks <= 0 {
		cfg.ContinueTimeoutTicks = def.ContinueTimeoutTicks
	}
	return &Game{cfg: cfg}
}

func (g *Game) Start(players [2]engine.Player, s engine.Scheduler) error {
	g.round = 1
	g.dropper = 0
	g.beginRound(s)
	return nil
}

func (g *Game) checker() int { return 1 - g.dropper }

func (g *Game) beginRound(s engine.Scheduler) {
	g.phase = PhaseHand
	g.drop, g.check = -1, -1
	g.continued = [2]bool{}
	g.current = &RoundResult{Round: g.round, Dropper: g.dropper, Drop: -1, Check: -1, Struck: -1}
	g.armTurn(s, g.cfg.RoundTimeoutTicks)
}

func (g *Game) armTurn(s engine.Scheduler, ticks int) {
	s.StartCountdown(engine.SlotTurn, ticks, engine.Signal{Kind: engine.SignalTimeout, Ref: g.round})
}

func (g *Game) HandleAction(seat int, a engine.Action, s engine.Scheduler) error {
	switch a.Kind {
	case engine.ActionDrop:
		return g.dropAt(seat, a.Index, s)
	case engine.ActionCheck:
		return g.checkAt(seat, a.Index, s)
	case engine.ActionRevive:
		return g.revive(seat, s)
	case engine.ActionContinue:
		return g.cont(seat, s)
	default:
		return fmt.Errorf("%w: %s in dropcheck", appErr.ErrUnknownAction, a.Kind)
	}
}

func (g *Game) dropAt(seat, slot int, s engine.Scheduler) error {
	if seat != g.dropper {
		return appErr.ErrInvalidActor
	}
	if g.phase != PhaseHand {
		if g.drop >= 0 && g.phase == PhaseDropped {
			return appErr.ErrDuplicateAction
		}
		return appErr.ErrPhaseClosed
	}
	if slot < 0 || slot >= g.cfg.Slots {
		return fmt.Errorf("%w: slot %d", appErr.ErrInvalidSelection, slot)
	}
	g.drop = slot
	g.current.Drop = slot
	g.phase = PhaseDropped
	g.armTurn(s, g.cfg.RoundTimeoutTicks)
	return nil
}

func (g *Game) checkAt(seat, slot int, s engine.Scheduler) error {
	if seat != g.checker() {
		return appErr.ErrInvalidActor
	}
	if g.phase != PhaseDropped {
		return appErr.ErrPhaseClosed
	}
	if slot < 0 || slot >= g.cfg.Slots {
		return fmt.Errorf("%w: slot %d", appErr.ErrInvalidSelection, slot)
	}
	g.check = slot
	g.current.Check = slot
	g.phase = PhaseChecked
	s.ClearCountdown(engine.SlotTurn)
	return s.Emit(engine.Signal{Kind: engine.SignalResolve, Ref: g.round})
}

func (g *Game) revive(seat int, s engine.Scheduler) error {
	if seat != g.checker() {
		return appErr.ErrInvalidActor
	}
	if g.phase != PhaseReviving {
		return appErr.ErrPhaseClosed
	}
	s.ClearCountdown(engine.SlotTurn)
	g.rollRevive(s)
	return nil
}

func (g *Game) cont(seat int, s engine.Scheduler) error {
	if g.phase != PhaseContinue {
		return appErr.ErrPhaseClosed
	}
	if g.continued[seat] {
		return appErr.ErrDuplicateAction
	}
	g.continued[seat] = true
	if g.continued[0] && g.continued[1] {
		s.ClearCountdown(engine.SlotPhase)
		return s.Emit(engine.Signal{Kind: engine.SignalNextRound, Ref: g.round})
	}
	return nil
}

func (g *Game) HandleSignal(sig engine.Signal, s engine.Scheduler) error {
	if sig.Ref != g.round {
		return nil
	}
	switch sig.Kind {
	case engine.SignalResolve:
		if g.phase == PhaseChecked {
			g.resolveCheck(s)
		}
	case engine.SignalTimeout:
		g.timeout(s)
	case engine.SignalNextRound:
		if g.phase == PhaseContinue {
			g.advance(s)
		}
	}
	return nil
}

func (g *Game) resolveCheck(s engine.Scheduler) {
	if rules.CheckDrop(g.drop, g.check) == rules.CheckSafe {
		g.current.Outcome = rules.CheckSafe.String()
		g.closeRound(s)
		return
	}
	checker := g.checker()
	g.current.Outcome = rules.CheckTrapped.String()
	g.current.DeathOdds = rules.ReviveDeathChance(g.cfg.ReviveBaseChance, g.cfg.ReviveStepChance, g.failures[checker])
	g.failures[checker]++
	g.phase = PhaseReviving
	g.armTurn(s, g.cfg.ReviveTimeoutTicks)
}

func (g *Game) rollRevive(s engine.Scheduler) {
	roll := s.Rand().Intn(100)
	g.current.ReviveRoll = roll + 1
	if roll < g.current.DeathOdds {
		g.current.Died = true
		g.history = append(g.history, *g.current)
		g.finish(engine.WinFor(g.dropper, "death"))
		return
	}
	g.closeRound(s)
}

// closeRound waits for both players to continue. It is independent of the
// strike counter, which only idle rounds touch.
func (g *Game) closeRound(s engine.Scheduler) {
	g.history = append(g.history, *g.current)
	g.phase = PhaseContinue
	s.ClearCountdown(engine.SlotTurn)
	s.StartCountdown(engine.SlotPhase, g.cfg.ContinueTimeoutTicks, engine.Signal{Kind: engine.SignalTimeout, Ref: g.round})
}

func (g *Game) timeout(s engine.Scheduler) {
	switch g.phase {
	case PhaseHand, PhaseDropped:
		idle := g.dropper
		if g.phase == PhaseDropped {
			idle = g.checker()
		}
		g.strikes[idle]++
		g.current.Outcome = "timeout"
		g.current.Struck = idle
		g.history = append(g.history, *g.current)
		if g.strikes[idle] >= g.cfg.MaxStrikes {
			g.finish(engine.WinFor(1-idle, "strikes"))
			return
		}
		g.advance(s)
	case PhaseReviving:
		g.rollRevive(s)
	case PhaseContinue:
		g.finish(engine.Draw("abandoned"))
	}
}

func (g *Game) advance(s engine.Scheduler) {
	if g.round >= g.cfg.MaxRounds {
		g.finish(engine.Draw("max_rounds"))
		return
	}
	g.round++
	g.dropper = g.checker()
	g.beginRound(s)
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
	Dropper   int           `json:"dropper"`
	Slots     int           `json:"slots"`
	Strikes   [2]int        `json:"strikes"`
	Failures  [2]int        `json:"failures"`
	Continued [2]bool       `json:"continued"`
	MyDrop    *int          `json:"myDrop,omitempty"`
	History   []RoundResult `json:"history"`
}

func (g *Game) View(seat int) any {
	v := View{
		Phase:     g.phase,
		Round:     g.round,
		Dropper:   g.dropper,
		Slots:     g.cfg.Slots,
		Strikes:   g.strikes,
		Failures:  g.failures,
		Continued: g.continued,
		History:   append([]RoundResult(nil), g.history...),
	}
	if seat == g.dropper && g.drop >= 0 {
		drop := g.drop
		v.MyDrop = &drop
	}
	return v
}
