// Package enginetest drives engine.Game implementations without a coordinator.
package enginetest

import (
	"math/rand"

	"duel-service/internal/engine"
)

// Scheduler records emitted signals and armed countdowns.
type Scheduler struct {
	Signals    []engine.Signal
	Countdowns engine.Countdowns
	rng        *rand.Rand
}

func NewScheduler(seed int64) *Scheduler {
	return &Scheduler{rng: rand.New(rand.NewSource(seed))}
}

func (s *Scheduler) Emit(sig engine.Signal) error {
	s.Signals = append(s.Signals, sig)
	return nil
}

func (s *Scheduler) StartCountdown(slot engine.Slot, ticks int, sig engine.Signal) {
	s.Countdowns.Start(slot, ticks, sig)
}

func (s *Scheduler) ClearCountdown(slot engine.Slot) {
	s.Countdowns.Clear(slot)
}

func (s *Scheduler) Rand() *rand.Rand { return s.rng }

// Pop removes and returns the oldest emitted signal.
func (s *Scheduler) Pop() (engine.Signal, bool) {
	if len(s.Signals) == 0 {
		return engine.Signal{}, false
	}
	sig := s.Signals[0]
	s.Signals = s.Signals[1:]
	return sig, true
}

// Drain feeds emitted signals back into the game until none are left, the way
// the coordinator does between external events.
func (s *Scheduler) Drain(g engine.Game) error {
	for {
		sig, ok := s.Pop()
		if !ok {
			return nil
		}
		if g.Done() {
			continue
		}
		if err := g.HandleSignal(sig, s); err != nil {
			return err
		}
	}
}

// Expire fires the countdown in slot immediately, as if its last tick elapsed.
func (s *Scheduler) Expire(g engine.Game, slot engine.Slot) error {
	c := s.Countdowns[slot]
	if !c.Active() {
		return nil
	}
	s.Countdowns.Clear(slot)
	if err := g.HandleSignal(c.Fire, s); err != nil {
		return err
	}
	return s.Drain(g)
}
