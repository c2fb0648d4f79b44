package present_test

import (
	"bytes"
	"strings"
	"testing"

	"duel-service/internal/engine"
	"duel-service/internal/present"

	"github.com/pterm/pterm"
)

var players = [2]engine.Player{{ID: 1, Name: "alice"}, {ID: 2, Name: "bob"}}

func snapshot(seq int64, state string) engine.Snapshot {
	return engine.Snapshot{
		SessionID: "s1",
		Game:      "duel",
		State:     state,
		Round:     1,
		Players:   players,
		Seq:       seq,
		Public:    "public",
		Views:     map[int64]any{1: "alice-view", 2: "bob-view"},
	}
}

func TestHubDeliversPerViewerState(t *testing.T) {
	hub := present.NewHub()
	hub.Publish(snapshot(1, "choosing_objects"))

	alice, unsubAlice := hub.Subscribe("s1", 1)
	defer unsubAlice()
	spectator, unsubSpectator := hub.Subscribe("s1", 99)
	defer unsubSpectator()

	msg := <-alice
	if msg.Type != "state" || msg.Seq != 1 || msg.Data.(present.SessionState).View != "alice-view" {
		t.Fatalf("subscriber should get the latest state first: %+v", msg)
	}
	<-spectator

	hub.Publish(snapshot(2, "betting"))
	if msg := <-spectator; msg.Data.(present.SessionState).View != "public" {
		t.Fatalf("spectators get the public view: %+v", msg)
	}
	if msg := <-alice; msg.Data.(present.SessionState).State != "betting" {
		t.Fatalf("unexpected state %+v", msg)
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := present.NewHub()
	ch, unsub := hub.Subscribe("s1", 1)
	defer unsub()

	for seq := int64(1); seq <= 50; seq++ {
		hub.Publish(snapshot(seq, "betting"))
	}
	final := snapshot(51, "game_over")
	final.Outcome = &engine.Outcome{Kind: engine.OutcomeDraw, Reason: "idle"}
	hub.Publish(final)

	var last present.Message
	count := 0
	for msg := range ch {
		last = msg
		count++
	}
	if last.Type != "final" || last.Seq != 51 {
		t.Fatalf("the final snapshot must survive a full buffer, got %+v", last)
	}
	if count > 8 {
		t.Fatalf("buffer should cap queued messages, got %d", count)
	}
	if hub.Subscribers("s1") != 0 {
		t.Fatalf("final snapshot should drop subscribers")
	}
}

func TestHubUnsubscribeTwice(t *testing.T) {
	hub := present.NewHub()
	ch, unsub := hub.Subscribe("s1", 1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	hub.Publish(snapshot(1, "betting"))
}

func TestHubLateSubscriberGetsFinalState(t *testing.T) {
	hub := present.NewHub()
	hub.Publish(snapshot(1, "betting"))
	final := snapshot(2, "game_over")
	final.Outcome = &engine.Outcome{Kind: engine.OutcomeDecided, Winner: players[0], Loser: players[1]}
	hub.Publish(final)

	ch, unsub := hub.Subscribe("s1", 2)
	defer unsub()
	msg, ok := <-ch
	if !ok || msg.Type != "final" || msg.Seq != 2 || msg.Data.(present.SessionState).View != "bob-view" {
		t.Fatalf("late subscriber should get the final state: %+v ok=%v", msg, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel of an ended session should be closed")
	}
	if n := hub.Subscribers("s1"); n != 0 {
		t.Fatalf("ended session must not keep subscribers, got %d", n)
	}
}

func TestTerminalRendersChangesAndOutcome(t *testing.T) {
	pterm.DisableColor()
	var buf bytes.Buffer
	term := present.NewTerminal(&buf)

	term.Publish(snapshot(1, "betting"))
	first := buf.Len()
	term.Publish(snapshot(2, "betting"))
	if buf.Len() != first {
		t.Fatalf("an unchanged snapshot should not be redrawn")
	}

	final := snapshot(3, "game_over")
	final.Outcome = &engine.Outcome{Kind: engine.OutcomeDecided, Winner: players[0], Loser: players[1], Amount: 1000, Reason: "damage_threshold"}
	term.Publish(final)

	out := buf.String()
	for _, want := range []string{"alice vs bob", "betting", "game_over", "alice wins 1000 from bob (damage_threshold)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
