package engine

import (
	"context"
	"sync"

	appErr "duel-service/pkg/errors"
)

// SignalKind names a follow-up transition that no player directly caused.
type SignalKind uint8

const (
	SignalUnknown SignalKind = iota
	SignalAcceptTimeout
	SignalTimeout
	SignalResolve
	SignalNextRound
)

func (k SignalKind) String() string {
	switch k {
	case SignalAcceptTimeout:
		return "accept_timeout"
	case SignalTimeout:
		return "timeout"
	case SignalResolve:
		return "resolve"
	case SignalNextRound:
		return "next_round"
	default:
		return "unknown"
	}
}

// Signal is a self-scheduled event. Ref is free for the game (seat, round...).
type Signal struct {
	Kind SignalKind
	Ref  int
}

// SignalQueue is a bounded FIFO with a single consumer. It is never closed on
// the channel side, so late producers get ErrSignalQueueClosed instead of a panic.
type SignalQueue struct {
	ch        chan Signal
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSignalQueue(depth int) *SignalQueue {
	if depth < 1 {
		depth = 1
	}
	return &SignalQueue{
		ch:     make(chan Signal, depth),
		closed: make(chan struct{}),
	}
}

// Push blocks until there is room, the queue is closed or ctx is done.
func (q *SignalQueue) Push(ctx context.Context, sig Signal) error {
	select {
	case <-q.closed:
		return appErr.ErrSignalQueueClosed
	default:
	}
	select {
	case q.ch <- sig:
		return nil
	case <-q.closed:
		return appErr.ErrSignalQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush enqueues without blocking.
func (q *SignalQueue) TryPush(sig Signal) error {
	select {
	case <-q.closed:
		return appErr.ErrSignalQueueClosed
	default:
	}
	select {
	case q.ch <- sig:
		return nil
	default:
		return appErr.ErrSignalQueueFull
	}
}

func (q *SignalQueue) C() <-chan Signal { return q.ch }

func (q *SignalQueue) Len() int { return len(q.ch) }

func (q *SignalQueue) Cap() int { return cap(q.ch) }

func (q *SignalQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
