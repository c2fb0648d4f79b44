package oldmaid_test

import (
	"errors"
	"slices"
	"testing"

	"duel-service/internal/engine"
	"duel-service/internal/engine/enginetest"
	"duel-service/internal/rules"
	"duel-service/internal/service/game/oldmaid"
	appErr "duel-service/pkg/errors"
)

var players = [2]engine.Player{{ID: 1, Name: "alice"}, {ID: 2, Name: "bob"}}

func start(t *testing.T, cfg oldmaid.Config, seed int64) (*oldmaid.Game, *enginetest.Scheduler) {
	t.Helper()
	g := oldmaid.New(cfg)
	s := enginetest.NewScheduler(seed)
	if err := g.Start(players, s); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return g, s
}

func tap(t *testing.T, g *oldmaid.Game, s *enginetest.Scheduler, seat, index int) {
	t.Helper()
	if err := g.HandleAction(seat, engine.Action{Kind: engine.ActionSelect, Index: index}, s); err != nil {
		t.Fatalf("seat %d select(%d) failed: %v", seat, index, err)
	}
	if err := s.Drain(g); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

func view(g *oldmaid.Game, seat int) oldmaid.View {
	return g.View(seat).(oldmaid.View)
}

func TestDealLeavesOneQueenAndNoPairs(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		g, _ := start(t, oldmaid.Config{}, seed)
		if g.Done() {
			continue
		}
		v0, v1 := view(g, 0), view(g, 1)
		if v0.Discarded[0]*2+v0.Discarded[1]*2+len(v0.MyHand)+len(v1.MyHand) != 51 {
			t.Fatalf("seed %d: cards lost in the deal: %+v %+v", seed, v0, v1)
		}

		queens := 0
		ranks := [2]map[rules.Rank]bool{{}, {}}
		for seat, hand := range [][]string{v0.MyHand, v1.MyHand} {
			for _, c := range rules.MustParseCards(hand...) {
				if c == oldmaid.OldMaidCard {
					t.Fatalf("seed %d: the removed queen was dealt", seed)
				}
				if ranks[seat][c.Rank] {
					t.Fatalf("seed %d: seat %d kept a pair of %s", seed, seat, c.Rank)
				}
				ranks[seat][c.Rank] = true
				if c.Rank == rules.Queen {
					queens++
				}
			}
		}
		if queens != 1 {
			t.Fatalf("seed %d: expected one unmatched queen, got %d", seed, queens)
		}
		for r := range ranks[0] {
			if r != rules.Queen && !ranks[1][r] {
				t.Fatalf("seed %d: %s has no partner across hands", seed, r)
			}
		}
	}
}

func TestTwoStepSelectAndQueenHolderLoses(t *testing.T) {
	// alice: Qh 5c 7c, bob: 5d 7d
	deck := rules.MustParseCards("Qh", "5d", "5c", "7d", "7c")
	g, s := start(t, oldmaid.Config{Deck: deck}, 1)
	if g.State() != oldmaid.PhaseSelecting || s.Countdowns.Remaining(engine.SlotTurn) != 30 {
		t.Fatalf("unexpected start state %s", g.State())
	}

	tap(t, g, s, 0, 1)
	if v := view(g, -1); v.Marked != 1 || v.HandSizes != [2]int{3, 2} {
		t.Fatalf("first tap should only mark: %+v", v)
	}
	tap(t, g, s, 0, 0)
	if v := view(g, -1); v.Marked != 0 || v.Round != 1 {
		t.Fatalf("a different card should re-mark: %+v", v)
	}
	tap(t, g, s, 0, 0)

	v := view(g, 0)
	if v.Turn != 1 || v.Round != 2 || v.HandSizes != [2]int{2, 1} || !v.History[0].Paired {
		t.Fatalf("drawing 5d should pair with 5c: %+v", v)
	}
	if !slices.Contains(v.MyHand, "Qh") || !slices.Contains(v.MyHand, "7c") {
		t.Fatalf("unexpected hand %v", v.MyHand)
	}

	seven := slices.Index(v.MyHand, "7c")
	tap(t, g, s, 1, seven)
	tap(t, g, s, 1, seven)
	if !g.Done() || g.Result() != engine.WinFor(1, "old_maid") {
		t.Fatalf("alice is left with the queen and should lose, got %+v", g.Result())
	}
	if v := view(g, 0); !slices.Equal(v.MyHand, []string{"Qh"}) {
		t.Fatalf("expected only the queen left, got %v", v.MyHand)
	}
}

func TestUnpairedDrawJoinsHand(t *testing.T) {
	// alice: 5c 9c, bob: Qh 9d
	deck := rules.MustParseCards("5c", "Qh", "9c", "9d")
	g, s := start(t, oldmaid.Config{Deck: deck}, 1)
	tap(t, g, s, 0, 0)
	tap(t, g, s, 0, 0)

	v := view(g, 0)
	if v.History[0].Paired || v.HandSizes != [2]int{3, 1} || v.Turn != 1 {
		t.Fatalf("an unpaired queen should join alice's hand: %+v", v)
	}
	if !slices.Contains(v.MyHand, "Qh") {
		t.Fatalf("expected the queen in alice's hand, got %v", v.MyHand)
	}
}

func TestSelectRejections(t *testing.T) {
	g, s := start(t, oldmaid.Config{}, 3)
	rival := view(g, -1).HandSizes[1]

	cases := []struct {
		seat  int
		kind  engine.ActionKind
		index int
		want  error
	}{
		{1, engine.ActionSelect, 0, appErr.ErrInvalidActor},
		{0, engine.ActionSelect, rival, appErr.ErrInvalidSelection},
		{0, engine.ActionSelect, -1, appErr.ErrInvalidSelection},
		{0, engine.ActionPlay, 0, appErr.ErrUnknownAction},
	}
	for _, tc := range cases {
		if err := g.HandleAction(tc.seat, engine.Action{Kind: tc.kind, Index: tc.index}, s); !errors.Is(err, tc.want) {
			t.Fatalf("seat %d %s(%d): expected %v, got %v", tc.seat, tc.kind, tc.index, tc.want, err)
		}
	}
	if v := view(g, -1); v.Marked != -1 || v.Round != 1 {
		t.Fatalf("rejected selections changed state: %+v", v)
	}
}

func TestTurnTimeoutForfeits(t *testing.T) {
	g, s := start(t, oldmaid.Config{}, 5)
	tap(t, g, s, 0, 0)
	if err := s.Expire(g, engine.SlotTurn); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if !g.Done() || g.Result() != engine.WinFor(1, "timeout") {
		t.Fatalf("idle player should forfeit, got %+v", g.Result())
	}
	if err := g.HandleAction(0, engine.Action{Kind: engine.ActionSelect}, s); !errors.Is(err, appErr.ErrPhaseClosed) {
		t.Fatalf("expected ErrPhaseClosed after game over, got %v", err)
	}
}

func TestFullGameTerminates(t *testing.T) {
	g, s := start(t, oldmaid.Config{}, 11)
	for turns := 0; !g.Done(); turns++ {
		if turns > 500 {
			t.Fatalf("game did not finish")
		}
		turn := view(g, -1).Turn
		tap(t, g, s, turn, 0)
		tap(t, g, s, turn, 0)
	}
	res := g.Result()
	if res.Reason != "old_maid" {
		t.Fatalf("unexpected result %+v", res)
	}
	loser := 1 - res.Winner
	if hand := view(g, loser).MyHand; len(hand) != 1 || hand[0][0] != 'Q' {
		t.Fatalf("loser should hold a lone queen, got %v", hand)
	}
}
