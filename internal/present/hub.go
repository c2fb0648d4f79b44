// Package present turns session snapshots into something a viewer can consume:
// a websocket fan-out for live clients and a terminal renderer for the
// simulator. Neither feeds anything back into a session.
package present

import (
	"sync"
	"time"

	"duel-service/internal/engine"
	"duel-service/pkg/logger"

	"go.uber.org/zap"
)

const (
	subscriberBuffer = 8
	// finishedRetention is how long a late subscriber still gets the final
	// snapshot of an ended session.
	finishedRetention = time.Minute
)

type Message struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`
	Data any    `json:"data"`
}

// SessionState is a snapshot as one viewer sees it.
type SessionState struct {
	engine.Snapshot
	View any `json:"view,omitempty"`
}

func stateFor(snap engine.Snapshot, userID int64) SessionState {
	return SessionState{Snapshot: snap, View: snap.ViewFor(userID)}
}

type finishedSession struct {
	snap  engine.Snapshot
	endAt time.Time
}

type subscriber struct {
	userID int64
	ch     chan Message
}

// Hub fans snapshots out to websocket subscribers. Publish never blocks; a
// subscriber that falls behind misses snapshots, and the next one carries the
// full state anyway.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[*subscriber]struct{}
	latest   map[string]engine.Snapshot
	finished map[string]finishedSession
}

func NewHub() *Hub {
	return &Hub{
		subs:     make(map[string]map[*subscriber]struct{}),
		latest:   make(map[string]engine.Snapshot),
		finished: make(map[string]finishedSession),
	}
}

// Subscribe registers userID for a session and immediately queues the latest
// known state. The returned func unsubscribes and is safe to call twice.
func (h *Hub) Subscribe(sessionID string, userID int64) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{userID: userID, ch: make(chan Message, subscriberBuffer)}
	if f, ok := h.finished[sessionID]; ok {
		// The session already ended: deliver its final state and close.
		sub.ch <- Message{Type: "final", Seq: f.snap.Seq, Data: stateFor(f.snap, userID)}
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	if snap, ok := h.latest[sessionID]; ok {
		sub.ch <- Message{Type: "state", Seq: snap.Seq, Data: stateFor(snap, userID)}
	}
	return sub.ch, func() { h.unsubscribe(sessionID, sub) }
}

func (h *Hub) unsubscribe(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.subs, sessionID)
	}
}

// Publish implements engine.Presenter. The final snapshot of a session is
// delivered as "final" and closes every subscription to it.
func (h *Hub) Publish(snap engine.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgType := "state"
	if snap.Final() {
		msgType = "final"
		delete(h.latest, snap.SessionID)
		h.pruneFinishedLocked()
		h.finished[snap.SessionID] = finishedSession{snap: snap, endAt: time.Now()}
	} else {
		h.latest[snap.SessionID] = snap
	}

	for sub := range h.subs[snap.SessionID] {
		msg := Message{Type: msgType, Seq: snap.Seq, Data: stateFor(snap, sub.userID)}
		select {
		case sub.ch <- msg:
		default:
			if !snap.Final() {
				logger.Log.Warn("ws subscriber channel full",
					zap.String("sessionID", snap.SessionID),
					zap.Int64("userID", sub.userID),
				)
				continue
			}
			// The hub is the only sender, so dropping the oldest makes room.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- msg
		}
		if snap.Final() {
			close(sub.ch)
		}
	}
	if snap.Final() {
		delete(h.subs, snap.SessionID)
	}
}

func (h *Hub) pruneFinishedLocked() {
	cutoff := time.Now().Add(-finishedRetention)
	for id, f := range h.finished {
		if f.endAt.Before(cutoff) {
			delete(h.finished, id)
		}
	}
}

// Subscribers reports how many viewers follow a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
