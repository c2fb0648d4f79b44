package match

import (
	"context"
	"time"

	"duel-service/internal/engine"
)

// Sessions is the part of the game manager the matcher needs.
type Sessions interface {
	HasKind(kind string) bool
	ResolveWager(ctx context.Context, userID int64, input string) (int64, error)
	ActiveSession(userID int64) (string, bool)
	// CheckStake fails when the player is busy or can no longer cover the wager.
	CheckStake(ctx context.Context, userID, wager int64) error
	StartMatched(ctx context.Context, kind string, wager int64, a, b engine.Player) (*engine.Coordinator, error)
}

type JoinQueueRequest struct {
	Player engine.Player
	Kind   string
	// Amount is raw wager input, resolved against the balance at join time.
	Amount string
	IP     string
}

type CancelQueueRequest struct {
	UserID int64
	Reason string
}

type QueueStatus string

const (
	QueueStatusIdle    QueueStatus = "idle"
	QueueStatusQueued  QueueStatus = "queued"
	QueueStatusMatched QueueStatus = "matched"
)

type StatusResult struct {
	Status    QueueStatus `json:"status"`
	Kind      string      `json:"kind,omitempty"`
	Wager     int64       `json:"wager,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	JoinedAt  *time.Time  `json:"joinedAt,omitempty"`
}

type queueMember struct {
	UserID   int64     `json:"userId"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Wager    int64     `json:"wager"`
	IP       string    `json:"ip"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (m queueMember) player() engine.Player {
	return engine.Player{ID: m.UserID, Name: m.Name}
}

// bucket groups players that can be paired: same game and same wager.
type bucket struct {
	Kind  string
	Wager int64
}

type matchNotifyPayload struct {
	Kind      string `json:"kind"`
	Wager     int64  `json:"wager"`
	SessionID string `json:"sessionId"`
}
