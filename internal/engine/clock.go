package engine

import (
	"sync"
	"time"
)

// Clock delivers the per-session tick.
type Clock interface {
	C() <-chan time.Time
	Stop()
}

type TickerClock struct {
	ticker *time.Ticker
}

func NewTickerClock(period time.Duration) *TickerClock {
	if period <= 0 {
		period = time.Second
	}
	return &TickerClock{ticker: time.NewTicker(period)}
}

func (c *TickerClock) C() <-chan time.Time { return c.ticker.C }

func (c *TickerClock) Stop() { c.ticker.Stop() }

// ManualClock hands ticks to the coordinator one at a time. Tick returns once
// the loop has taken the tick, which makes timing in tests deterministic.
type ManualClock struct {
	ch       chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
	now      time.Time
	wait     time.Duration
}

func NewManualClock() *ManualClock {
	return &ManualClock{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
		now:     time.Unix(0, 0),
		wait:    time.Second,
	}
}

func (c *ManualClock) C() <-chan time.Time { return c.ch }

func (c *ManualClock) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

// Tick reports whether the tick was delivered. Ticks after the session ended
// are dropped.
func (c *ManualClock) Tick() bool {
	c.now = c.now.Add(time.Second)
	select {
	case c.ch <- c.now:
		return true
	case <-c.stopped:
		return false
	case <-time.After(c.wait):
		return false
	}
}

// Advance delivers up to n ticks and returns how many were taken.
func (c *ManualClock) Advance(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		if !c.Tick() {
			break
		}
		delivered++
	}
	return delivered
}
