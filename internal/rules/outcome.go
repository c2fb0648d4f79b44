package rules

import (
	"fmt"
	"strings"

	appErr "duel-service/pkg/errors"
)

type Weapon uint8

const (
	Sword Weapon = iota
	Spear
	Axe
	Bow
	WeaponCount
)

var weaponNames = [WeaponCount]string{"sword", "spear", "axe", "bow"}

func (w Weapon) String() string {
	if w >= WeaponCount {
		return "unknown"
	}
	return weaponNames[w]
}

type Shield uint8

const (
	Buckler Shield = iota
	Kite
	Tower
	Mirror
	ShieldCount
)

var shieldNames = [ShieldCount]string{"buckler", "kite", "tower", "mirror"}

func (s Shield) String() string {
	if s >= ShieldCount {
		return "unknown"
	}
	return shieldNames[s]
}

func ParseWeapon(name string) (Weapon, error) {
	for i, n := range weaponNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Weapon(i), nil
		}
	}
	return 0, fmt.Errorf("%w: weapon %q", appErr.ErrInvalidSelection, name)
}

func ParseShield(name string) (Shield, error) {
	for i, n := range shieldNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Shield(i), nil
		}
	}
	return 0, fmt.Errorf("%w: shield %q", appErr.ErrInvalidSelection, name)
}

// Reaction is what happens when a weapon meets a shield. The zero value is not
// a valid reaction, so an unset cell can never pass validation.
type Reaction uint8

const (
	reactionUnset Reaction = iota
	Hit
	Pierced
	Shattered
	Reflected
	Blocked
)

var reactionNames = map[Reaction]string{
	Hit:       "hit",
	Pierced:   "pierced",
	Shattered: "shattered",
	Reflected: "reflected",
	Blocked:   "blocked",
}

func (r Reaction) String() string {
	if n, ok := reactionNames[r]; ok {
		return n
	}
	return "unset"
}

func ParseReaction(name string) (Reaction, error) {
	for r, n := range reactionNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return r, nil
		}
	}
	return reactionUnset, fmt.Errorf("unknown reaction %q", name)
}

// Target says who takes the damage of a reaction.
type Target uint8

const (
	TargetNone Target = iota
	TargetDefender
	TargetAttacker
)

func (r Reaction) Target() Target {
	switch r {
	case Hit, Pierced, Shattered:
		return TargetDefender
	case Reflected:
		return TargetAttacker
	default:
		return TargetNone
	}
}

type Entry struct {
	Reaction Reaction `json:"reaction"`
	Damage   int      `json:"damage"`
}

func (e Entry) validate() error {
	switch {
	case e.Reaction == reactionUnset:
		return fmt.Errorf("reaction is unset")
	case e.Reaction == Blocked && e.Damage != 0:
		return fmt.Errorf("blocked cell carries damage %d", e.Damage)
	case e.Reaction != Blocked && e.Damage <= 0:
		return fmt.Errorf("%s cell needs positive damage, got %d", e.Reaction, e.Damage)
	}
	return nil
}

// Override replaces one cell by name, as read from config.
type Override struct {
	Weapon   string `mapstructure:"weapon"`
	Shield   string `mapstructure:"shield"`
	Reaction string `mapstructure:"reaction"`
	Damage   int    `mapstructure:"damage"`
}

// OutcomeTable is the full weapon x shield matrix. It is immutable once built.
type OutcomeTable struct {
	cells [WeaponCount][ShieldCount]Entry
}

// Axe against Mirror has no agreed balance value; Shattered/20 is the shipped
// product setting and can be replaced through config.
var defaultOutcomes = [WeaponCount][ShieldCount]Entry{
	Sword: {
		Buckler: {Blocked, 0},
		Kite:    {Hit, 20},
		Tower:   {Blocked, 0},
		Mirror:  {Reflected, 15},
	},
	Spear: {
		Buckler: {Hit, 35},
		Kite:    {Blocked, 0},
		Tower:   {Pierced, 25},
		Mirror:  {Hit, 30},
	},
	Axe: {
		Buckler: {Hit, 40},
		Kite:    {Pierced, 30},
		Tower:   {Blocked, 0},
		Mirror:  {Shattered, 20},
	},
	Bow: {
		Buckler: {Hit, 25},
		Kite:    {Hit, 25},
		Tower:   {Blocked, 0},
		Mirror:  {Reflected, 25},
	},
}

// NewOutcomeTable starts from the default matrix, applies overrides and checks
// that every cell is defined.
func NewOutcomeTable(overrides []Override) (*OutcomeTable, error) {
	t := &OutcomeTable{cells: defaultOutcomes}
	for _, o := range overrides {
		w, err := ParseWeapon(o.Weapon)
		if err != nil {
			return nil, err
		}
		s, err := ParseShield(o.Shield)
		if err != nil {
			return nil, err
		}
		r, err := ParseReaction(o.Reaction)
		if err != nil {
			return nil, err
		}
		t.cells[w][s] = Entry{Reaction: r, Damage: o.Damage}
	}
	for w := Weapon(0); w < WeaponCount; w++ {
		for s := Shield(0); s < ShieldCount; s++ {
			if err := t.cells[w][s].validate(); err != nil {
				return nil, fmt.Errorf("outcome %s/%s: %w", w, s, err)
			}
		}
	}
	return t, nil
}

// DefaultOutcomeTable panics only if the built-in matrix is broken.
func DefaultOutcomeTable() *OutcomeTable {
	t, err := NewOutcomeTable(nil)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *OutcomeTable) Resolve(w Weapon, s Shield) (Entry, error) {
	if w >= WeaponCount || s >= ShieldCount {
		return Entry{}, fmt.Errorf("%w: %d/%d", appErr.ErrInvalidSelection, w, s)
	}
	return t.cells[w][s], nil
}

// CheckResult is the drop/check pair outcome.
type CheckResult uint8

const (
	CheckSafe CheckResult = iota
	CheckTrapped
)

func (r CheckResult) String() string {
	if r == CheckTrapped {
		return "trapped"
	}
	return "safe"
}

// CheckDrop resolves a checker's slot against the dropper's slot.
func CheckDrop(drop, check int) CheckResult {
	if drop == check {
		return CheckTrapped
	}
	return CheckSafe
}

// ReviveDeathChance is the percent chance a revive kills, growing with every
// earlier failed check of the same player.
func ReviveDeathChance(base, step, priorFailures int) int {
	return max(0, min(100, base+step*priorFailures))
}

// Resolution is the compare-hands outcome from seat 0's side.
type Resolution struct {
	Winner int          `json:"winner"`
	Hands  [2]HandValue `json:"hands"`
}

// ShowdownOutcome evaluates two hands. Winner is 0 or 1, or -1 when the hands
// are exactly equal.
func ShowdownOutcome(a, b [5]Card) Resolution {
	res := Resolution{Hands: [2]HandValue{EvaluateHand(a), EvaluateHand(b)}}
	switch res.Hands[0].Compare(res.Hands[1]) {
	case 1:
		res.Winner = 0
	case -1:
		res.Winner = 1
	default:
		res.Winner = -1
	}
	return res
}
