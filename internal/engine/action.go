package engine

import (
	"fmt"
	"strconv"
	"strings"

	appErr "duel-service/pkg/errors"
)

// ActionKind is the closed set of verbs a player can submit. Transport layers
// decode into it once; games switch on it exhaustively.
type ActionKind uint8

const (
	ActionUnknown ActionKind = iota
	ActionAccept
	ActionDecline
	ActionJoin
	ActionForfeit
	ActionPick
	ActionConfirm
	ActionRaise
	ActionDrop
	ActionCheck
	ActionRevive
	ActionContinue
	ActionSelect
	ActionPlay
)

var actionVerbs = map[string]ActionKind{
	"accept":   ActionAccept,
	"decline":  ActionDecline,
	"join":     ActionJoin,
	"forfeit":  ActionForfeit,
	"pick":     ActionPick,
	"confirm":  ActionConfirm,
	"raise":    ActionRaise,
	"drop":     ActionDrop,
	"check":    ActionCheck,
	"revive":   ActionRevive,
	"continue": ActionContinue,
	"select":   ActionSelect,
	"play":     ActionPlay,
}

func (k ActionKind) String() string {
	for verb, kind := range actionVerbs {
		if kind == k {
			return verb
		}
	}
	return "unknown"
}

// Indexed reports whether the verb carries a positional argument.
func (k ActionKind) Indexed() bool {
	switch k {
	case ActionPick, ActionDrop, ActionCheck, ActionSelect, ActionPlay:
		return true
	default:
		return false
	}
}

// Action is one player input addressed to a session.
type Action struct {
	SessionID string
	ActorID   int64
	ActorName string
	Kind      ActionKind
	Index     int
}

// ParseVerb maps a lowercase verb to its ActionKind.
func ParseVerb(verb string) (ActionKind, error) {
	kind, ok := actionVerbs[strings.ToLower(strings.TrimSpace(verb))]
	if !ok {
		return ActionUnknown, fmt.Errorf("%w: %q", appErr.ErrUnknownAction, verb)
	}
	return kind, nil
}

// ParseActionID decodes a composite component id of the form
// "{session}_{verb}[_{index}]" into an Action without an actor.
func ParseActionID(id string) (Action, error) {
	parts := strings.Split(strings.TrimSpace(id), "_")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return Action{}, fmt.Errorf("%w: %q", appErr.ErrUnknownAction, id)
	}
	kind, err := ParseVerb(parts[1])
	if err != nil {
		return Action{}, err
	}
	action := Action{SessionID: parts[0], Kind: kind}
	if !kind.Indexed() {
		if len(parts) == 3 {
			return Action{}, fmt.Errorf("%w: %q takes no index", appErr.ErrUnknownAction, parts[1])
		}
		return action, nil
	}
	if len(parts) != 3 {
		return Action{}, fmt.Errorf("%w: %q needs an index", appErr.ErrInvalidSelection, parts[1])
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil || idx < 0 {
		return Action{}, fmt.Errorf("%w: index %q", appErr.ErrInvalidSelection, parts[2])
	}
	action.Index = idx
	return action, nil
}
