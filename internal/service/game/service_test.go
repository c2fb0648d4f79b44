package game_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"duel-service/internal/engine"
	"duel-service/internal/model"
	"duel-service/internal/service/economy"
	"duel-service/internal/service/game"
	appErr "duel-service/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	alice = engine.Player{ID: 1, Name: "alice"}
	bob   = engine.Player{ID: 2, Name: "bob"}
	carol = engine.Player{ID: 3, Name: "carol"}
)

func newService(t *testing.T) (*game.Service, *economy.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Wallet{}, &model.Debt{}, &model.BillingLog{}, &model.GameRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	for _, p := range []engine.Player{alice, bob, carol} {
		if err := db.Create(&model.Wallet{UserID: p.ID, BalanceAvailable: 5000}).Error; err != nil {
			t.Fatalf("failed to seed wallet: %v", err)
		}
	}
	econ := economy.NewService(db, nil, economy.Config{MinWager: 100})
	svc := game.NewService(db, econ, nil, game.Config{
		NewClock: func() engine.Clock { return engine.NewManualClock() },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc, econ, db
}

func waitDone(t *testing.T, coord *engine.Coordinator) engine.Outcome {
	t.Helper()
	select {
	case <-coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not finish", coord.ID())
	}
	return coord.Outcome()
}

func submit(t *testing.T, svc *game.Service, id string, p engine.Player, kind engine.ActionKind) {
	t.Helper()
	if err := svc.Submit(context.Background(), engine.Action{SessionID: id, ActorID: p.ID, ActorName: p.Name, Kind: kind}); err != nil {
		t.Fatalf("%s by %s failed: %v", kind, p.Name, err)
	}
}

func TestStartValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	// dave has no wallet.
	poor := engine.Player{ID: 9, Name: "dave"}

	cases := []struct {
		req  game.StartRequest
		want error
	}{
		{game.StartRequest{Kind: "chess", Challenger: alice, Opponent: bob}, appErr.ErrUnknownGame},
		{game.StartRequest{Kind: game.KindDuel, Challenger: alice, Opponent: alice}, appErr.ErrInvalidPlayers},
		{game.StartRequest{Kind: game.KindDuel, Opponent: bob}, appErr.ErrInvalidPlayers},
		{game.StartRequest{Kind: game.KindDuel, Challenger: alice, Opponent: bob, Amount: "10k"}, appErr.ErrInsufficientFunds},
		{game.StartRequest{Kind: game.KindDuel, Challenger: alice, Opponent: bob, Amount: "50"}, appErr.ErrAmountTooSmall},
		{game.StartRequest{Kind: game.KindDuel, Challenger: alice, Opponent: bob, Amount: "lots"}, appErr.ErrInvalidAmount},
		{game.StartRequest{Kind: game.KindDuel, Challenger: alice, Opponent: poor, Amount: "1000"}, appErr.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		if _, err := svc.Start(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%+v: expected %v, got %v", tc.req, tc.want, err)
		}
	}
	if active := svc.Active(); len(active) != 0 {
		t.Fatalf("rejected starts must not create sessions: %v", active)
	}
	if _, ok := svc.ActiveSession(poor.ID); ok {
		t.Fatalf("an opponent who cannot pay must not be seated")
	}
	if _, err := svc.StartMatched(ctx, game.KindDuel, 1000, alice, poor); !errors.Is(err, appErr.ErrInsufficientFunds) {
		t.Fatalf("matched start must check both balances, got %v", err)
	}
	if err := svc.CheckStake(ctx, poor.ID, 1000); !errors.Is(err, appErr.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := svc.CheckStake(ctx, poor.ID, 0); err != nil {
		t.Fatalf("friendly games need no balance, got %v", err)
	}
}

func TestForfeitSettlesAndRecords(t *testing.T) {
	svc, econ, db := newService(t)
	ctx := context.Background()

	coord, err := svc.Start(ctx, game.StartRequest{Kind: game.KindDuel, Challenger: alice, Opponent: bob, Amount: "1.5k"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if coord.Wager() != 1500 {
		t.Fatalf("expected wager 1500, got %d", coord.Wager())
	}
	submit(t, svc, coord.ID(), bob, engine.ActionAccept)
	submit(t, svc, coord.ID(), alice, engine.ActionForfeit)

	out := waitDone(t, coord)
	if out.Kind != engine.OutcomeDecided || out.Winner != bob || out.Reason != "forfeit" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	a, _ := econ.GetBalance(ctx, alice.ID)
	b, _ := econ.GetBalance(ctx, bob.ID)
	if a != 3500 || b != 6500 {
		t.Fatalf("unexpected balances alice=%d bob=%d", a, b)
	}

	var rec model.GameRecord
	if err := db.Where("session_id = ?", coord.ID()).First(&rec).Error; err != nil {
		t.Fatalf("record not written: %v", err)
	}
	if rec.Game != game.KindDuel || rec.Outcome != "decided" || rec.WinnerID == nil || *rec.WinnerID != bob.ID || rec.Wager != 1500 || rec.Rounds != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	records, err := svc.Records(ctx, alice.ID, 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one record for alice, got %d (%v)", len(records), err)
	}
	if _, err := svc.Get(coord.ID()); !errors.Is(err, appErr.ErrSessionNotFound) {
		t.Fatalf("finished session should leave the registry, got %v", err)
	}
}

func TestBusyGuard(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	coord, err := svc.Start(ctx, game.StartRequest{Kind: game.KindOverflow, Challenger: alice, Opponent: bob})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.Start(ctx, game.StartRequest{Kind: game.KindDuel, Challenger: carol, Opponent: bob}); !errors.Is(err, appErr.ErrPlayerBusy) {
		t.Fatalf("expected ErrPlayerBusy, got %v", err)
	}
	if id, ok := svc.ActiveSession(bob.ID); !ok || id != coord.ID() {
		t.Fatalf("bob should be seated in %s", coord.ID())
	}

	submit(t, svc, coord.ID(), bob, engine.ActionDecline)
	if out := waitDone(t, coord); out.Kind != engine.OutcomeCancelled {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, ok := svc.ActiveSession(bob.ID); ok {
		t.Fatalf("decline should free bob")
	}
	next, err := svc.Start(ctx, game.StartRequest{Kind: game.KindDuel, Challenger: carol, Opponent: bob})
	if err != nil {
		t.Fatalf("start after release failed: %v", err)
	}
	submit(t, svc, next.ID(), carol, engine.ActionDecline)
	waitDone(t, next)
}

func TestOpenChallengeJoinAndRawActions(t *testing.T) {
	svc, econ, _ := newService(t)
	ctx := context.Background()

	coord, err := svc.Start(ctx, game.StartRequest{Kind: game.KindDropCheck, Challenger: alice, Amount: "500"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	poor := engine.Player{ID: 9, Name: "dave"}
	if err := svc.Join(ctx, coord.ID(), poor); !errors.Is(err, appErr.ErrInsufficientFunds) {
		t.Fatalf("a player who cannot cover the wager must not join, got %v", err)
	}
	if _, ok := svc.ActiveSession(poor.ID); ok {
		t.Fatalf("a refused join must not seat dave")
	}
	if err := svc.SubmitRaw(ctx, carol, coord.ID()+"_join"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := svc.Join(ctx, coord.ID(), bob); !errors.Is(err, appErr.ErrGameFull) {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
	if _, ok := svc.ActiveSession(bob.ID); ok {
		t.Fatalf("a failed join must not seat bob")
	}

	if err := svc.SubmitRaw(ctx, carol, coord.ID()+"_drop_1"); !errors.Is(err, appErr.ErrInvalidActor) {
		t.Fatalf("carol checks in round 1, got %v", err)
	}
	if err := svc.SubmitRaw(ctx, alice, coord.ID()+"_dance"); !errors.Is(err, appErr.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if err := svc.SubmitRaw(ctx, alice, coord.ID()+"_drop_1"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	snap, err := svc.Snapshot(ctx, coord.ID())
	if err != nil || snap.State != "dropped" || snap.Players[1] != carol {
		t.Fatalf("unexpected snapshot %+v (%v)", snap, err)
	}

	if err := svc.SubmitRaw(ctx, carol, coord.ID()+"_forfeit"); err != nil {
		t.Fatalf("forfeit failed: %v", err)
	}
	out := waitDone(t, coord)
	if out.Winner != alice || out.Loser != carol {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if c, _ := econ.GetBalance(ctx, carol.ID); c != 4500 {
		t.Fatalf("carol should have paid 500, has %d", c)
	}
	if _, ok := svc.ActiveSession(carol.ID); ok {
		t.Fatalf("joined player should be freed at the end")
	}
}

func TestStartMatchedSkipsLobby(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	coord, err := svc.StartMatched(ctx, game.KindShowdown, 0, alice, bob)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	snap, err := coord.Snapshot(ctx)
	if err != nil || snap.State != "drawing" {
		t.Fatalf("matched session should be dealt immediately: %+v (%v)", snap, err)
	}
	if _, err := svc.StartMatched(ctx, game.KindShowdown, 0, carol, carol); !errors.Is(err, appErr.ErrInvalidPlayers) {
		t.Fatalf("expected ErrInvalidPlayers, got %v", err)
	}
}

func TestShutdownAbortsSessions(t *testing.T) {
	svc, econ, _ := newService(t)
	ctx := context.Background()

	coord, err := svc.StartMatched(ctx, game.KindOverflow, 1000, alice, bob)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if out := coord.Outcome(); out.Kind != engine.OutcomeAborted || out.Reason != "process_abort" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if a, _ := econ.GetBalance(ctx, alice.ID); a != 5000 {
		t.Fatalf("aborted session must not move money, alice has %d", a)
	}
	if err := svc.Submit(ctx, engine.Action{SessionID: coord.ID(), ActorID: alice.ID, Kind: engine.ActionPlay}); !errors.Is(err, appErr.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestKinds(t *testing.T) {
	svc, _, _ := newService(t)
	want := []string{"dropcheck", "duel", "oldmaid", "overflow", "showdown"}
	got := svc.Kinds()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
