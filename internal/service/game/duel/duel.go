// Package duel is the weapon/shield wager battle. Attacker and defender swap
// every round; damage accumulates until one side reaches the threshold or the
// item pool runs out.
package duel

import (
	"fmt"

	"duel-service/internal/engine"
	"duel-service/internal/rules"
	appErr "duel-service/pkg/errors"
)

const (
	PhaseChoosing  = "choosing_objects"
	PhaseBetting   = "betting"
	PhaseResolving = "resolving"
	PhaseNext      = "next_round_or_end"
	PhaseGameOver  = "game_over"
)

const (
	betHold  = 1
	betPress = 2
)

type Config struct {
	DamageThreshold    int
	ChooseTimeoutTicks int
	BetTimeoutTicks    int
	RoundDelayTicks    int
	Outcomes           *rules.OutcomeTable
}

func DefaultConfig() Config {
	return Config{
		DamageThreshold:    100,
		ChooseTimeoutTicks: 30,
		BetTimeoutTicks:    20,
		RoundDelayTicks:    3,
		Outcomes:           rules.DefaultOutcomeTable(),
	}
}

type RoundResult struct {
	Round    int    `json:"round"`
	Attacker int    `json:"attacker"`
	Weapon   string `json:"weapon"`
	Shield   string `json:"shield"`
	Reaction string `json:"reaction"`
	Bets     [2]int `json:"bets"`
	Damage   int    `json:"damage"`
	// Target is the seat that took the damage, -1 when blocked.
	Target int `json:"target"`
}

type Game struct {
	cfg Config

	phase    string
	round    int
	attacker int
	forced   bool

	weapons [rules.WeaponCount]bool
	shields [rules.ShieldCount]bool

	weapon rules.Weapon
	shield rules.Shield
	picked [2]bool

	bets      [2]int
	betPlaced [2]bool

	damage  [2]int
	history []RoundResult

	done   bool
	result engine.Result
}

func New(cfg Config) *Game {
	def := DefaultConfig()
	if cfg.DamageThreshold <= 0 {
		cfg.DamageThreshold = def.DamageThreshold
	}
	if cfg.ChooseTimeoutTicks <= 0 {
		cfg.ChooseTimeoutTicks = def.ChooseTimeoutTicks
	}
	if cfg.BetTimeoutTicks <= 0 {
		cfg.BetTimeoutTicks = def.BetTimeoutTicks
	}
	if cfg.RoundDelayTicks <= 0 {
		cfg.RoundDelayTicks = def.RoundDelayTicks
	}
	if cfg.Outcomes == nil {
		cfg.Outcomes = def.Outcomes
	}
	return &Game{cfg: cfg}
}

func (g *Game) Start(players [2]engine.Player, s engine.Scheduler) error {
	for i := range g.weapons {
		g.weapons[i] = true
	}
	for i := range g.shields {
		g.shields[i] = true
	}
	g.round = 1
	g.attacker = 0
	g.beginRound(s)
	return nil
}

func (g *Game) defender() int { return 1 - g.attacker }

func (g *Game) beginRound(s engine.Scheduler) {
	g.picked = [2]bool{}
	g.bets = [2]int{}
	g.betPlaced = [2]bool{}
	g.forced = false

	weapons, shields := available(g.weapons[:]), available(g.shields[:])
	if len(weapons) == 1 && len(shields) == 1 {
		g.weapon = rules.Weapon(weapons[0])
		g.shield = rules.Shield(shields[0])
		g.picked = [2]bool{true, true}
		g.forced = true
		g.enterBetting(s)
		return
	}
	g.phase = PhaseChoosing
	s.StartCountdown(engine.SlotTurn, g.cfg.ChooseTimeoutTicks, engine.Signal{Kind: engine.SignalTimeout, Ref: g.round})
}

func (g *Game) enterBetting(s engine.Scheduler) {
	g.phase = PhaseBetting
	s.StartCountdown(engine.SlotTurn, g.cfg.BetTimeoutTicks, engine.Signal{Kind: engine.SignalTimeout, Ref: g.round})
}

func (g *Game) enterResolving(s engine.Scheduler) error {
	s.ClearCountdown(engine.SlotTurn)
	g.phase = PhaseResolving
	return s.Emit(engine.Signal{Kind: engine.SignalResolve, Ref: g.round})
}

func (g *Game) HandleAction(seat int, a engine.Action, s engine.Scheduler) error {
	switch a.Kind {
	case engine.ActionPick:
		return g.pick(seat, a.Index, s)
	case engine.ActionConfirm:
		return g.bet(seat, betHold, s)
	case engine.ActionRaise:
		return g.bet(seat, betPress, s)
	default:
		return fmt.Errorf("%w: %s in duel", appErr.ErrUnknownAction, a.Kind)
	}
}

func (g *Game) pick(seat, index int, s engine.Scheduler) error {
	if g.phase != PhaseChoosing {
		return appErr.ErrPhaseClosed
	}
	if g.picked[seat] {
		return appErr.ErrDuplicateAction
	}
	if seat == g.attacker {
		if index < 0 || index >= int(rules.WeaponCount) || !g.weapons[index] {
			return fmt.Errorf("%w: weapon %d", appErr.ErrInvalidSelection, index)
		}
		g.weapon = rules.Weapon(index)
	} else {
		if index < 0 || index >= int(rules.ShieldCount) || !g.shields[index] {
			return fmt.Errorf("%w: shield %d", appErr.ErrInvalidSelection, index)
		}
		g.shield = rules.Shield(index)
	}
	g.picked[seat] = true
	if g.picked[0] && g.picked[1] {
		g.enterBetting(s)
	}
	return nil
}

func (g *Game) bet(seat, stake int, s engine.Scheduler) error {
	if g.phase != PhaseBetting {
		return appErr.ErrPhaseClosed
	}
	if g.betPlaced[seat] {
		return appErr.ErrDuplicateAction
	}
	g.bets[seat] = stake
	g.betPlaced[seat] = true
	if g.betPlaced[0] && g.betPlaced[1] {
		return g.enterResolving(s)
	}
	return nil
}

func (g *Game) HandleSignal(sig engine.Signal, s engine.Scheduler) error {
	if sig.Ref != g.round {
		return nil
	}
	switch sig.Kind {
	case engine.SignalTimeout:
		return g.timeout(s)
	case engine.SignalResolve:
		if g.phase == PhaseResolving {
			g.resolve(s)
		}
	case engine.SignalNextRound:
		if g.phase == PhaseNext {
			g.round++
			g.attacker = g.defender()
			g.beginRound(s)
		}
	}
	return nil
}

func (g *Game) timeout(s engine.Scheduler) error {
	switch g.phase {
	case PhaseChoosing:
		switch {
		case !g.picked[0] && !g.picked[1]:
			g.finish(engine.Draw("idle"))
		case !g.picked[0]:
			g.finish(engine.WinFor(1, "timeout"))
		case !g.picked[1]:
			g.finish(engine.WinFor(0, "timeout"))
		}
	case PhaseBetting:
		for seat := range g.betPlaced {
			if !g.betPlaced[seat] {
				g.bets[seat] = betHold
				g.betPlaced[seat] = true
			}
		}
		return g.enterResolving(s)
	}
	return nil
}

func (g *Game) resolve(s engine.Scheduler) {
	entry, err := g.cfg.Outcomes.Resolve(g.weapon, g.shield)
	if err != nil {
		// Picks are validated on the way in; a miss here means a broken table.
		g.finish(engine.Draw("invalid_outcome"))
		return
	}
	res := RoundResult{
		Round:    g.round,
		Attacker: g.attacker,
		Weapon:   g.weapon.String(),
		Shield:   g.shield.String(),
		Reaction: entry.Reaction.String(),
		Bets:     g.bets,
		Damage:   entry.Damage * (g.bets[0] + g.bets[1]) / 2,
		Target:   -1,
	}
	switch entry.Reaction.Target() {
	case rules.TargetDefender:
		res.Target = g.defender()
	case rules.TargetAttacker:
		res.Target = g.attacker
	}
	if res.Target >= 0 {
		g.damage[res.Target] += res.Damage
	}
	g.history = append(g.history, res)
	g.weapons[g.weapon] = false
	g.shields[g.shield] = false

	if res.Target >= 0 && g.damage[res.Target] >= g.cfg.DamageThreshold {
		g.finish(engine.WinFor(1-res.Target, "damage_threshold"))
		return
	}
	if len(available(g.weapons[:])) == 0 || len(available(g.shields[:])) == 0 {
		switch {
		case g.damage[0] < g.damage[1]:
			g.finish(engine.WinFor(0, "pool_exhausted"))
		case g.damage[1] < g.damage[0]:
			g.finish(engine.WinFor(1, "pool_exhausted"))
		default:
			g.finish(engine.Draw("pool_exhausted"))
		}
		return
	}
	g.phase = PhaseNext
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

// Damage reports the damage taken by each seat.
func (g *Game) Damage() [2]int { return g.damage }

type View struct {
	Phase     string        `json:"phase"`
	Round     int           `json:"round"`
	Attacker  int           `json:"attacker"`
	Forced    bool          `json:"forced"`
	Weapons   []string      `json:"weapons"`
	Shields   []string      `json:"shields"`
	Damage    [2]int        `json:"damage"`
	Threshold int           `json:"threshold"`
	Picked    [2]bool       `json:"picked"`
	BetPlaced [2]bool       `json:"betPlaced"`
	MyPick    string        `json:"myPick,omitempty"`
	History   []RoundResult `json:"history"`
}

func (g *Game) View(seat int) any {
	v := View{
		Phase:     g.phase,
		Round:     g.round,
		Attacker:  g.attacker,
		Forced:    g.forced,
		Damage:    g.damage,
		Threshold: g.cfg.DamageThreshold,
		Picked:    g.picked,
		BetPlaced: g.betPlaced,
		History:   append([]RoundResult(nil), g.history...),
	}
	for _, i := range available(g.weapons[:]) {
		v.Weapons = append(v.Weapons, rules.Weapon(i).String())
	}
	for _, i := range available(g.shields[:]) {
		v.Shields = append(v.Shields, rules.Shield(i).String())
	}
	if seat >= 0 && g.picked[seat] {
		if seat == g.attacker {
			v.MyPick = g.weapon.String()
		} else {
			v.MyPick = g.shield.String()
		}
	}
	return v
}

func available(pool []bool) []int {
	var out []int
	for i, ok := range pool {
		if ok {
			out = append(out, i)
		}
	}
	return out
}
