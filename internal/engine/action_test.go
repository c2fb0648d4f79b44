package engine_test

import (
	"errors"
	"testing"

	"duel-service/internal/engine"
	appErr "duel-service/pkg/errors"
)

func TestParseActionID(t *testing.T) {
	cases := []struct {
		id      string
		kind    engine.ActionKind
		index   int
		wantErr error
	}{
		{id: "abc_accept", kind: engine.ActionAccept},
		{id: "abc_pick_3", kind: engine.ActionPick, index: 3},
		{id: "abc_select_0", kind: engine.ActionSelect},
		{id: "abc_raise", kind: engine.ActionRaise},
		{id: "abc_pick", wantErr: appErr.ErrInvalidSelection},
		{id: "abc_pick_x", wantErr: appErr.ErrInvalidSelection},
		{id: "abc_pick_-1", wantErr: appErr.ErrInvalidSelection},
		{id: "abc_confirm_2", wantErr: appErr.ErrUnknownAction},
		{id: "abc_dance", wantErr: appErr.ErrUnknownAction},
		{id: "_accept", wantErr: appErr.ErrUnknownAction},
		{id: "abc", wantErr: appErr.ErrUnknownAction},
	}
	for _, tc := range cases {
		a, err := engine.ParseActionID(tc.id)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s: expected %v, got %v", tc.id, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.id, err)
		}
		if a.SessionID != "abc" || a.Kind != tc.kind || a.Index != tc.index {
			t.Fatalf("%s: decoded %+v", tc.id, a)
		}
	}
}

func TestActionKindString(t *testing.T) {
	if got := engine.ActionContinue.String(); got != "continue" {
		t.Fatalf("expected continue, got %s", got)
	}
	if got := engine.ActionUnknown.String(); got != "unknown" {
		t.Fatalf("expected unknown, got %s", got)
	}
	if kind, err := engine.ParseVerb(" Revive "); err != nil || kind != engine.ActionRevive {
		t.Fatalf("expected revive, got %v %v", kind, err)
	}
}
