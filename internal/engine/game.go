package engine

import (
	"context"
	"math/rand"
)

type Player struct {
	ID   int64  `json:"id,string"`
	Name string `json:"name"`
}

// Scheduler is the part of the coordinator a game may drive while handling an
// event. Signals it emits always land on the game's own session.
type Scheduler interface {
	Emit(sig Signal) error
	StartCountdown(slot Slot, ticks int, sig Signal)
	ClearCountdown(slot Slot)
	Rand() *rand.Rand
}

// Game is a per-family transition table. Every method runs on the coordinator
// goroutine; implementations need no locking.
type Game interface {
	// Start is called once both seats are filled and the challenge accepted.
	Start(players [2]Player, s Scheduler) error
	// HandleAction receives actions from seated players only.
	HandleAction(seat int, a Action, s Scheduler) error
	HandleSignal(sig Signal, s Scheduler) error
	Done() bool
	Result() Result
	State() string
	Round() int
	// View returns a copy of the state visible from seat; -1 is a spectator.
	View(seat int) any
}

// NoWinner marks a drawn Result.
const NoWinner = -1

type Result struct {
	Winner int    `json:"winner"`
	Reason string `json:"reason"`
}

func Draw(reason string) Result { return Result{Winner: NoWinner, Reason: reason} }

func WinFor(seat int, reason string) Result { return Result{Winner: seat, Reason: reason} }

type OutcomeKind string

const (
	OutcomeDecided   OutcomeKind = "decided"
	OutcomeDraw      OutcomeKind = "draw"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeAborted   OutcomeKind = "aborted"
)

// Outcome is what the coordinator hands to settlement when a session ends.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Winner Player      `json:"winner"`
	Loser  Player      `json:"loser"`
	Amount int64       `json:"amount"`
	Reason string      `json:"reason"`
	Rounds int         `json:"rounds"`
	// Players are the seats as they stood when the session ended.
	Players [2]Player `json:"players"`
}

// Settler applies a final outcome. The coordinator calls it exactly once.
type Settler interface {
	SettleOutcome(ctx context.Context, sessionID string, out Outcome) error
}

// Presenter receives read-only snapshots. Its behaviour never feeds back into
// the session.
type Presenter interface {
	Publish(s Snapshot)
}

type Snapshot struct {
	SessionID  string         `json:"sessionId"`
	Game       string         `json:"game"`
	State      string         `json:"state"`
	Round      int            `json:"round"`
	Wager      int64          `json:"wager"`
	Players    [2]Player      `json:"players"`
	Countdowns [slotCount]int `json:"countdowns"`
	Seq        int64          `json:"seq"`
	Public     any            `json:"public,omitempty"`
	Views      map[int64]any  `json:"-"`
	Outcome    *Outcome       `json:"outcome,omitempty"`
}

// ViewFor returns the seat view of a participant or the public view.
func (s Snapshot) ViewFor(userID int64) any {
	if v, ok := s.Views[userID]; ok {
		return v
	}
	return s.Public
}

// Final reports whether this is the closing snapshot of the session.
func (s Snapshot) Final() bool { return s.Outcome != nil }

type nopSettler struct{}

func (nopSettler) SettleOutcome(context.Context, string, Outcome) error { return nil }

type nopPresenter struct{}

func (nopPresenter) Publish(Snapshot) {}
