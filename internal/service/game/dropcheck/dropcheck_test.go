package dropcheck_test

import (
	"errors"
	"testing"

	"duel-service/internal/engine"
	"duel-service/internal/engine/enginetest"
	"duel-service/internal/service/game/dropcheck"
	appErr "duel-service/pkg/errors"
)

var players = [2]engine.Player{{ID: 1, Name: "alice"}, {ID: 2, Name: "bob"}}

func start(t *testing.T, cfg dropcheck.Config, seed int64) (*dropcheck.Game, *enginetest.Scheduler) {
	t.Helper()
	g := dropcheck.New(cfg)
	s := enginetest.NewScheduler(seed)
	if err := g.Start(players, s); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return g, s
}

func act(t *testing.T, g *dropcheck.Game, s *enginetest.Scheduler, seat int, kind engine.ActionKind, index int) {
	t.Helper()
	if err := g.HandleAction(seat, engine.Action{Kind: kind, Index: index}, s); err != nil {
		t.Fatalf("seat %d %s(%d) failed: %v", seat, kind, index, err)
	}
	if err := s.Drain(g); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

func expire(t *testing.T, g *dropcheck.Game, s *enginetest.Scheduler, slot engine.Slot) {
	t.Helper()
	if err := s.Expire(g, slot); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
}

func view(g *dropcheck.Game, seat int) dropcheck.View {
	return g.View(seat).(dropcheck.View)
}

func TestSafeCheckWaitsForBothToContinue(t *testing.T) {
	g, s := start(t, dropcheck.Config{}, 1)
	if g.State() != dropcheck.PhaseHand || s.Countdowns.Remaining(engine.SlotTurn) != 30 {
		t.Fatalf("unexpected start state %s", g.State())
	}

	act(t, g, s, 0, engine.ActionDrop, 2)
	if v := view(g, 0); v.MyDrop == nil || *v.MyDrop != 2 {
		t.Fatalf("dropper should see the drop: %+v", v)
	}
	if v := view(g, 1); v.MyDrop != nil {
		t.Fatalf("checker must not see the drop: %+v", v)
	}

	act(t, g, s, 1, engine.ActionCheck, 3)
	if g.State() != dropcheck.PhaseContinue {
		t.Fatalf("expected %s, got %s", dropcheck.PhaseContinue, g.State())
	}
	if s.Countdowns.Remaining(engine.SlotPhase) != 30 || s.Countdowns.Remaining(engine.SlotTurn) != 0 {
		t.Fatalf("continue phase should only arm the phase countdown")
	}

	act(t, g, s, 0, engine.ActionContinue, 0)
	if err := g.HandleAction(0, engine.Action{Kind: engine.ActionContinue}, s); !errors.Is(err, appErr.ErrDuplicateAction) {
		t.Fatalf("expected ErrDuplicateAction, got %v", err)
	}
	if g.Round() != 1 {
		t.Fatalf("one continue must not advance the round")
	}
	act(t, g, s, 1, engine.ActionContinue, 0)

	v := view(g, -1)
	if v.Round != 2 || v.Dropper != 1 || v.Phase != dropcheck.PhaseHand {
		t.Fatalf("roles should swap for round 2: %+v", v)
	}
	if len(v.History) != 1 || v.History[0].Outcome != "safe" || v.History[0].Struck != -1 {
		t.Fatalf("unexpected history %+v", v.History)
	}
}

func TestRejectionsLeaveStateUnchanged(t *testing.T) {
	g, s := start(t, dropcheck.Config{}, 1)

	cases := []struct {
		seat  int
		kind  engine.ActionKind
		index int
		want  error
	}{
		{1, engine.ActionDrop, 0, appErr.ErrInvalidActor},
		{0, engine.ActionCheck, 0, appErr.ErrInvalidActor},
		{1, engine.ActionCheck, 0, appErr.ErrPhaseClosed},
		{0, engine.ActionDrop, 5, appErr.ErrInvalidSelection},
		{0, engine.ActionContinue, 0, appErr.ErrPhaseClosed},
		{1, engine.ActionRevive, 0, appErr.ErrPhaseClosed},
		{0, engine.ActionPick, 0, appErr.ErrUnknownAction},
	}
	for _, tc := range cases {
		if err := g.HandleAction(tc.seat, engine.Action{Kind: tc.kind, Index: tc.index}, s); !errors.Is(err, tc.want) {
			t.Fatalf("seat %d %s(%d): expected %v, got %v", tc.seat, tc.kind, tc.index, tc.want, err)
		}
	}
	if g.State() != dropcheck.PhaseHand || len(s.Signals) != 0 {
		t.Fatalf("rejected actions changed state to %s", g.State())
	}

	act(t, g, s, 0, engine.ActionDrop, 1)
	if err := g.HandleAction(0, engine.Action{Kind: engine.ActionDrop, Index: 3}, s); !errors.Is(err, appErr.ErrDuplicateAction) {
		t.Fatalf("expected ErrDuplicateAction, got %v", err)
	}
	if v := view(g, 0); *v.MyDrop != 1 {
		t.Fatalf("duplicate drop replaced the first one: %+v", v)
	}
	if err := g.HandleAction(1, engine.Action{Kind: engine.ActionCheck, Index: -1}, s); !errors.Is(err, appErr.ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
}

func TestTrapWithCertainDeathEndsGame(t *testing.T) {
	g, s := start(t, dropcheck.Config{ReviveBaseChance: 100}, 1)
	act(t, g, s, 0, engine.ActionDrop, 4)
	act(t, g, s, 1, engine.ActionCheck, 4)

	v := view(g, -1)
	if v.Phase != dropcheck.PhaseReviving || v.Failures != [2]int{0, 1} {
		t.Fatalf("trapped checker should be reviving: %+v", v)
	}
	if s.Countdowns.Remaining(engine.SlotTurn) != 15 {
		t.Fatalf("revive countdown not armed")
	}
	if err := g.HandleAction(0, engine.Action{Kind: engine.ActionRevive}, s); !errors.Is(err, appErr.ErrInvalidActor) {
		t.Fatalf("only the checker revives, got %v", err)
	}

	act(t, g, s, 1, engine.ActionRevive, 0)
	if !g.Done() || g.Result() != engine.WinFor(0, "death") {
		t.Fatalf("expected the dropper to win on death, got %+v", g.Result())
	}
	last := view(g, -1).History[0]
	if !last.Died || last.DeathOdds != 100 || last.Outcome != "trapped" {
		t.Fatalf("unexpected round record %+v", last)
	}
}

func TestReviveTimeoutRollsAutomatically(t *testing.T) {
	g, s := start(t, dropcheck.Config{ReviveBaseChance: 100}, 1)
	act(t, g, s, 0, engine.ActionDrop, 0)
	act(t, g, s, 1, engine.ActionCheck, 0)
	expire(t, g, s, engine.SlotTurn)
	if !g.Done() || g.Result() != engine.WinFor(0, "death") {
		t.Fatalf("idle revive should still roll, got %+v", g.Result())
	}
}

func TestReviveOddsEscalate(t *testing.T) {
	var died, survived int
	for seed := int64(1); seed <= 64; seed++ {
		g, s := start(t, dropcheck.DefaultConfig(), seed)
		act(t, g, s, 0, engine.ActionDrop, 3)
		act(t, g, s, 1, engine.ActionCheck, 3)
		act(t, g, s, 1, engine.ActionRevive, 0)

		first := view(g, -1).History[0]
		if first.DeathOdds != 20 || first.ReviveRoll < 1 || first.ReviveRoll > 100 {
			t.Fatalf("seed %d: unexpected first trap %+v", seed, first)
		}
		if first.Died {
			died++
			if first.ReviveRoll > 20 || g.Result() != engine.WinFor(0, "death") {
				t.Fatalf("seed %d: death with roll %d, result %+v", seed, first.ReviveRoll, g.Result())
			}
			continue
		}
		survived++
		if first.ReviveRoll <= 20 || g.State() != dropcheck.PhaseContinue {
			t.Fatalf("seed %d: survival with roll %d in %s", seed, first.ReviveRoll, g.State())
		}

		act(t, g, s, 0, engine.ActionContinue, 0)
		act(t, g, s, 1, engine.ActionContinue, 0)
		// Round 2: roles swap and bob drops safely past alice.
		act(t, g, s, 1, engine.ActionDrop, 0)
		act(t, g, s, 0, engine.ActionCheck, 1)
		act(t, g, s, 1, engine.ActionContinue, 0)
		act(t, g, s, 0, engine.ActionContinue, 0)
		// Round 3: bob is trapped a second time.
		act(t, g, s, 0, engine.ActionDrop, 2)
		act(t, g, s, 1, engine.ActionCheck, 2)
		if odds := view(g, -1); odds.Failures[1] != 2 {
			t.Fatalf("seed %d: expected two failures, got %+v", seed, odds.Failures)
		}
		act(t, g, s, 1, engine.ActionRevive, 0)
		if third := view(g, -1).History[2]; third.DeathOdds != 40 {
			t.Fatalf("seed %d: second trap should be deadlier, got %+v", seed, third)
		}
	}
	if died == 0 || survived == 0 {
		t.Fatalf("expected both outcomes across seeds, died=%d survived=%d", died, survived)
	}
}

func TestTwoStrikesLose(t *testing.T) {
	g, s := start(t, dropcheck.Config{}, 1)
	expire(t, g, s, engine.SlotTurn)

	v := view(g, -1)
	if v.Strikes != [2]int{1, 0} || v.Round != 2 || v.Dropper != 1 || v.Phase != dropcheck.PhaseHand {
		t.Fatalf("idle dropper should be struck and the round skipped: %+v", v)
	}
	if v.History[0].Outcome != "timeout" || v.History[0].Struck != 0 {
		t.Fatalf("unexpected history %+v", v.History)
	}

	act(t, g, s, 1, engine.ActionDrop, 2)
	expire(t, g, s, engine.SlotTurn)
	if !g.Done() || g.Result() != engine.WinFor(1, "strikes") {
		t.Fatalf("second strike should lose, got %+v", g.Result())
	}
}

func TestContinueTimeoutAbandonsWithoutStrike(t *testing.T) {
	g, s := start(t, dropcheck.Config{}, 1)
	expire(t, g, s, engine.SlotTurn)

	act(t, g, s, 1, engine.ActionDrop, 0)
	act(t, g, s, 0, engine.ActionCheck, 4)
	act(t, g, s, 1, engine.ActionContinue, 0)
	expire(t, g, s, engine.SlotPhase)

	if !g.Done() || g.Result() != engine.Draw("abandoned") {
		t.Fatalf("continue timeout should abandon the game, got %+v", g.Result())
	}
	if v := view(g, -1); v.Strikes != [2]int{1, 0} {
		t.Fatalf("continue timeout must not touch strikes: %+v", v.Strikes)
	}
}

func TestMaxRoundsDraw(t *testing.T) {
	g, s := start(t, dropcheck.Config{MaxRounds: 1}, 1)
	act(t, g, s, 0, engine.ActionDrop, 0)
	act(t, g, s, 1, engine.ActionCheck, 1)
	act(t, g, s, 0, engine.ActionContinue, 0)
	act(t, g, s, 1, engine.ActionContinue, 0)
	if !g.Done() || g.Result() != engine.Draw("max_rounds") {
		t.Fatalf("expected a max_rounds draw, got %+v", g.Result())
	}
}

func TestStaleSignalsIgnored(t *testing.T) {
	g, s := start(t, dropcheck.Config{}, 1)
	if err := g.HandleSignal(engine.Signal{Kind: engine.SignalTimeout, Ref: 9}, s); err != nil {
		t.Fatalf("stale signal failed: %v", err)
	}
	if g.Done() || g.State() != dropcheck.PhaseHand || view(g, -1).Strikes != [2]int{} {
		t.Fatalf("stale timeout must not change state")
	}
}
