package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	appErr "duel-service/pkg/errors"
	"duel-service/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultQueueDepth    = 4
	defaultAcceptTicks   = 60
	settlementTimeout    = 10 * time.Second
	stateWaitingAccept   = "waiting_accept"
	stateCancelled       = "cancelled"
	stateAborted         = "aborted"
	stateGameOver        = "game_over"
	reasonDeclined       = "declined"
	reasonWithdrawn      = "withdrawn"
	reasonAcceptTimeout  = "accept_timeout"
	reasonForfeit        = "forfeit"
	reasonProcessAbort   = "process_abort"
	reasonEngineFailure  = "engine_failure"
	reasonPersistFailure = "persistence_failure"
)

type Options struct {
	ID    string
	Kind  string
	Wager int64
	// Opponent with ID 0 makes an open challenge that anyone can join.
	Challenger Player
	Opponent   Player

	Clock              Clock
	QueueDepth         int
	AcceptTimeoutTicks int
	Seed               int64
	// AutoAccept starts the game as soon as Run begins. Both seats must be set.
	AutoAccept bool

	Settler   Settler
	Presenter Presenter
	Logger    *zap.Logger
}

type envelope struct {
	action   Action
	reply    chan error
	snapshot chan Snapshot
}

// Coordinator owns one session. Run is its only goroutine; everything else
// talks to it through channels.
type Coordinator struct {
	id    string
	kind  string
	wager int64

	players  [2]Player
	accepted bool
	game     Game

	clock   Clock
	signals *SignalQueue
	timers  Countdowns
	rng     *rand.Rand
	actions chan envelope
	done    chan struct{}

	settler   Settler
	presenter Presenter
	log       *zap.Logger

	seq         int64
	acceptTicks int
	autoAccept  bool
	ended       bool
	outcome     Outcome
	endState    string
}

func NewCoordinator(game Game, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = NewTickerClock(time.Second)
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	if opts.AcceptTimeoutTicks <= 0 {
		opts.AcceptTimeoutTicks = defaultAcceptTicks
	}
	if opts.Settler == nil {
		opts.Settler = nopSettler{}
	}
	if opts.Presenter == nil {
		opts.Presenter = nopPresenter{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Log
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Coordinator{
		id:          opts.ID,
		kind:        opts.Kind,
		wager:       opts.Wager,
		players:     [2]Player{opts.Challenger, opts.Opponent},
		game:        game,
		clock:       opts.Clock,
		signals:     NewSignalQueue(opts.QueueDepth),
		rng:         rand.New(rand.NewSource(opts.Seed)),
		actions:     make(chan envelope),
		done:        make(chan struct{}),
		settler:     opts.Settler,
		presenter:   opts.Presenter,
		log:         opts.Logger.With(zap.String("sessionID", opts.ID), zap.String("game", opts.Kind)),
		acceptTicks: opts.AcceptTimeoutTicks,
		autoAccept:  opts.AutoAccept && opts.Opponent.ID != 0,
	}
}

func (c *Coordinator) ID() string { return c.id }

func (c *Coordinator) Kind() string { return c.kind }

func (c *Coordinator) Wager() int64 { return c.wager }

func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Outcome is only meaningful after Done is closed.
func (c *Coordinator) Outcome() Outcome {
	select {
	case <-c.done:
		return c.outcome
	default:
		return Outcome{}
	}
}

// Submit queues an action and waits for the loop to handle it. The returned
// error is the rejection, if any. Submitting to a finished session returns
// ErrSessionClosed and has no effect.
func (c *Coordinator) Submit(ctx context.Context, a Action) error {
	env := envelope{action: a, reply: make(chan error, 1)}
	select {
	case c.actions <- env:
	case <-c.done:
		return appErr.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot asks the loop for the current state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	env := envelope{snapshot: make(chan Snapshot, 1)}
	select {
	case c.actions <- env:
	case <-c.done:
		return Snapshot{}, appErr.ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-env.snapshot:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run drives the session until it ends. Settlement happens exactly once on the
// way out, before Done is closed.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.clock.Stop()
	defer c.signals.Close()

	c.log.Info("session started",
		zap.Int64("challenger", c.players[0].ID),
		zap.Int64("opponent", c.players[1].ID),
		zap.Int64("wager", c.wager),
	)
	var runErr error
	if c.autoAccept {
		runErr = c.startGame()
	} else {
		c.timers.Start(SlotPhase, c.acceptTicks, Signal{Kind: SignalAcceptTimeout})
	}
	c.afterEvent()

	for !c.ended {
		// Follow-up signals run before anything new from outside.
		select {
		case sig := <-c.signals.C():
			runErr = c.dispatchSignal(sig)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			c.terminate(OutcomeAborted, stateAborted, reasonProcessAbort)
		case env := <-c.actions:
			if env.snapshot != nil {
				env.snapshot <- c.snapshot()
				continue
			}
			err := c.dispatchAction(env.action)
			env.reply <- err
			if c.fatal(err) {
				runErr = err
			}
		case <-c.clock.C():
			runErr = c.onTick()
		case sig := <-c.signals.C():
			runErr = c.dispatchSignal(sig)
		}
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settlementTimeout)
	defer cancel()
	if err := c.settler.SettleOutcome(settleCtx, c.id, c.outcome); err != nil {
		c.log.Error("settlement failed", zap.Error(err), zap.String("outcome", string(c.outcome.Kind)))
		if runErr == nil {
			runErr = err
		}
	}
	c.publish()
	c.log.Info("session ended",
		zap.String("outcome", string(c.outcome.Kind)),
		zap.String("reason", c.outcome.Reason),
		zap.Int64("winner", c.outcome.Winner.ID),
	)
	return runErr
}

func (c *Coordinator) dispatchAction(a Action) error {
	if err := c.handleAction(a); err != nil {
		if !c.fatal(err) {
			c.log.Debug("action rejected",
				zap.Int64("actor", a.ActorID),
				zap.String("action", a.Kind.String()),
				zap.Error(err),
			)
		}
		return err
	}
	c.afterEvent()
	return nil
}

func (c *Coordinator) dispatchSignal(sig Signal) error {
	err := c.handleSignal(sig)
	if c.fatal(err) {
		return err
	}
	if err != nil {
		c.log.Warn("signal handler failed", zap.String("signal", sig.Kind.String()), zap.Error(err))
	}
	c.afterEvent()
	return nil
}

func (c *Coordinator) onTick() error {
	if !c.timers.AnyActive() {
		return nil
	}
	for _, sig := range c.timers.Tick() {
		if err := c.Emit(sig); err != nil {
			c.fatal(err)
			return err
		}
	}
	c.publish()
	return nil
}

func (c *Coordinator) handleAction(a Action) error {
	seat := c.seatOf(a.ActorID)
	switch a.Kind {
	case ActionJoin:
		return c.join(a)
	case ActionUnknown:
		return appErr.ErrUnknownAction
	}
	if seat < 0 {
		return appErr.ErrInvalidActor
	}

	switch a.Kind {
	case ActionAccept:
		if c.accepted {
			return appErr.ErrDuplicateAction
		}
		if seat != 1 {
			return appErr.ErrInvalidActor
		}
		return c.startGame()
	case ActionDecline:
		if c.accepted {
			return appErr.ErrPhaseClosed
		}
		reason := reasonDeclined
		if seat == 0 {
			reason = reasonWithdrawn
		}
		c.terminate(OutcomeCancelled, stateCancelled, reason)
		return nil
	case ActionForfeit:
		if !c.accepted {
			return appErr.ErrPhaseClosed
		}
		c.finishWith(WinFor(1-seat, reasonForfeit))
		return nil
	}

	if !c.accepted {
		return appErr.ErrPhaseClosed
	}
	return c.game.HandleAction(seat, a, c)
}

func (c *Coordinator) join(a Action) error {
	switch seat := c.seatOf(a.ActorID); {
	case seat == 1 && !c.accepted:
		return c.startGame()
	case seat >= 0:
		return appErr.ErrDuplicateAction
	}
	if c.accepted || c.players[1].ID != 0 {
		return appErr.ErrGameFull
	}
	if a.ActorID == 0 {
		return appErr.ErrInvalidActor
	}
	c.players[1] = Player{ID: a.ActorID, Name: a.ActorName}
	return c.startGame()
}

func (c *Coordinator) startGame() error {
	c.accepted = true
	c.timers.Clear(SlotPhase)
	if err := c.game.Start(c.players, c); err != nil {
		c.log.Error("game start failed", zap.Error(err))
		c.terminate(OutcomeAborted, stateAborted, reasonEngineFailure)
		return fmt.Errorf("start game: %w", err)
	}
	return nil
}

func (c *Coordinator) handleSignal(sig Signal) error {
	if sig.Kind == SignalAcceptTimeout {
		if !c.accepted {
			c.terminate(OutcomeCancelled, stateCancelled, reasonAcceptTimeout)
		}
		return nil
	}
	if !c.accepted || c.game.Done() {
		return nil
	}
	return c.game.HandleSignal(sig, c)
}

func (c *Coordinator) afterEvent() {
	if c.ended {
		return
	}
	if c.accepted && c.game.Done() {
		c.finishWith(c.game.Result())
		return
	}
	c.publish()
}

func (c *Coordinator) finishWith(res Result) {
	if res.Winner == NoWinner {
		c.terminate(OutcomeDraw, stateGameOver, res.Reason)
		return
	}
	c.ended = true
	c.endState = stateGameOver
	c.outcome = Outcome{
		Kind:    OutcomeDecided,
		Winner:  c.players[res.Winner],
		Loser:   c.players[1-res.Winner],
		Amount:  c.wager,
		Reason:  res.Reason,
		Rounds:  c.rounds(),
		Players: c.players,
	}
}

func (c *Coordinator) terminate(kind OutcomeKind, state, reason string) {
	c.ended = true
	c.endState = state
	c.outcome = Outcome{Kind: kind, Amount: c.wager, Reason: reason, Rounds: c.rounds(), Players: c.players}
}

func (c *Coordinator) rounds() int {
	if !c.accepted {
		return 0
	}
	return c.game.Round()
}

// fatal separates session-ending failures from ordinary rejections.
func (c *Coordinator) fatal(err error) bool {
	if err == nil {
		return false
	}
	var reason string
	switch {
	case errors.Is(err, appErr.ErrPersistenceFailure):
		reason = reasonPersistFailure
	case errors.Is(err, appErr.ErrSignalQueueFull):
		reason = reasonEngineFailure
	default:
		return false
	}
	if !c.ended {
		c.log.Error("session aborted", zap.Error(err))
		c.terminate(OutcomeAborted, stateAborted, reason)
	}
	return true
}

func (c *Coordinator) seatOf(userID int64) int {
	if userID == 0 {
		return -1
	}
	for i, p := range c.players {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

// Emit implements Scheduler. The loop itself is the only consumer, so a full
// queue can never drain while we wait; overflow is an engine failure.
func (c *Coordinator) Emit(sig Signal) error {
	if err := c.signals.TryPush(sig); err != nil {
		return fmt.Errorf("emit %s: %w", sig.Kind, err)
	}
	return nil
}

func (c *Coordinator) StartCountdown(slot Slot, ticks int, sig Signal) {
	c.timers.Start(slot, ticks, sig)
}

func (c *Coordinator) ClearCountdown(slot Slot) {
	c.timers.Clear(slot)
}

func (c *Coordinator) Rand() *rand.Rand { return c.rng }

func (c *Coordinator) state() string {
	switch {
	case c.ended:
		return c.endState
	case !c.accepted:
		return stateWaitingAccept
	default:
		return c.game.State()
	}
}

func (c *Coordinator) snapshot() Snapshot {
	c.seq++
	snap := Snapshot{
		SessionID: c.id,
		Game:      c.kind,
		State:     c.state(),
		Wager:     c.wager,
		Players:   c.players,
		Seq:       c.seq,
	}
	for i := range c.timers {
		snap.Countdowns[i] = c.timers[i].Remaining
	}
	if c.accepted {
		snap.Round = c.game.Round()
		snap.Public = c.game.View(-1)
		snap.Views = make(map[int64]any, len(c.players))
		for seat, p := range c.players {
			snap.Views[p.ID] = c.game.View(seat)
		}
	}
	if c.ended {
		out := c.outcome
		snap.Outcome = &out
	}
	return snap
}

func (c *Coordinator) publish() {
	c.presenter.Publish(c.snapshot())
}
