// Package game hosts live sessions: it builds a coordinator per session, keeps
// the registry used to route actions, guards players against joining two
// sessions at once and records every finished session.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"duel-service/internal/engine"
	"duel-service/internal/model"
	"duel-service/internal/service/economy"
	"duel-service/internal/service/game/dropcheck"
	"duel-service/internal/service/game/duel"
	"duel-service/internal/service/game/oldmaid"
	"duel-service/internal/service/game/overflow"
	"duel-service/internal/service/game/showdown"
	"duel-service/pkg/amount"
	appErr "duel-service/pkg/errors"
	"duel-service/pkg/logger"
	"duel-service/pkg/utils/random"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	KindDuel      = "duel"
	KindDropCheck = "dropcheck"
	KindOldMaid   = "oldmaid"
	KindOverflow  = "overflow"
	KindShowdown  = "showdown"
)

type Config struct {
	TickPeriod         time.Duration
	QueueDepth         int
	AcceptTimeoutTicks int

	Duel      duel.Config
	DropCheck dropcheck.Config
	OldMaid   oldmaid.Config
	Overflow  overflow.Config
	Showdown  showdown.Config

	// NewClock overrides the ticker clock, mostly for tests and simulations.
	NewClock func() engine.Clock
	// NewSeed feeds each session's random source.
	NewSeed func() int64
}

type StartRequest struct {
	Kind       string
	Challenger engine.Player
	// Opponent with ID 0 opens the challenge to anyone.
	Opponent engine.Player
	// Amount is the raw wager input; empty means a friendly game.
	Amount string
}

type session struct {
	coord     *engine.Coordinator
	startedAt time.Time
}

type Service struct {
	db        *gorm.DB
	economy   *economy.Service
	presenter engine.Presenter
	cfg       Config
	factories map[string]func() engine.Game

	mu       sync.RWMutex
	sessions map[string]*session
	busy     map[int64]string

	runCtx context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(db *gorm.DB, econ *economy.Service, presenter engine.Presenter, cfg Config) *Service {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = time.Second
	}
	if cfg.NewClock == nil {
		period := cfg.TickPeriod
		cfg.NewClock = func() engine.Clock { return engine.NewTickerClock(period) }
	}
	if cfg.NewSeed == nil {
		cfg.NewSeed = random.Seed
	}
	runCtx, stop := context.WithCancel(context.Background())
	return &Service{
		db:        db,
		economy:   econ,
		presenter: presenter,
		cfg:       cfg,
		factories: map[string]func() engine.Game{
			KindDuel:      func() engine.Game { return duel.New(cfg.Duel) },
			KindDropCheck: func() engine.Game { return dropcheck.New(cfg.DropCheck) },
			KindOldMaid:   func() engine.Game { return oldmaid.New(cfg.OldMaid) },
			KindOverflow:  func() engine.Game { return overflow.New(cfg.Overflow) },
			KindShowdown:  func() engine.Game { return showdown.New(cfg.Showdown) },
		},
		sessions: make(map[string]*session),
		busy:     make(map[int64]string),
		runCtx:   runCtx,
		stop:     stop,
	}
}

// Kinds lists the game families that can be started.
func (s *Service) Kinds() []string {
	kinds := make([]string, 0, len(s.factories))
	for k := range s.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (s *Service) HasKind(kind string) bool {
	_, ok := s.factories[kind]
	return ok
}

// ResolveWager parses raw wager input against the player's balance.
func (s *Service) ResolveWager(ctx context.Context, userID int64, input string) (int64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}
	balance, err := s.economy.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return amount.Parse(input, balance, s.economy.MinWager())
}

// Start opens a challenge. The session waits for the opponent to accept, or
// for anyone to join when the opponent is left empty.
func (s *Service) Start(ctx context.Context, req StartRequest) (*engine.Coordinator, error) {
	if !s.HasKind(req.Kind) {
		return nil, fmt.Errorf("%w: %q", appErr.ErrUnknownGame, req.Kind)
	}
	if req.Challenger.ID == 0 || req.Opponent.ID == req.Challenger.ID {
		return nil, appErr.ErrInvalidPlayers
	}
	wager, err := s.ResolveWager(ctx, req.Challenger.ID, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCovers(ctx, wager, req.Opponent.ID); err != nil {
		return nil, err
	}
	return s.launch(req.Kind, wager, req.Challenger, req.Opponent, false)
}

// StartMatched begins a session between two players that already agreed, for
// example through the quick-match queue.
func (s *Service) StartMatched(ctx context.Context, kind string, wager int64, a, b engine.Player) (*engine.Coordinator, error) {
	if !s.HasKind(kind) {
		return nil, fmt.Errorf("%w: %q", appErr.ErrUnknownGame, kind)
	}
	if a.ID == 0 || b.ID == 0 || a.ID == b.ID {
		return nil, appErr.ErrInvalidPlayers
	}
	if err := s.ensureCovers(ctx, wager, a.ID, b.ID); err != nil {
		return nil, err
	}
	return s.launch(kind, wager, a, b, true)
}

// CheckStake reports whether a player could sit down at a wager right now.
func (s *Service) CheckStake(ctx context.Context, userID, wager int64) error {
	if _, busy := s.ActiveSession(userID); busy {
		return fmt.Errorf("%w: %d", appErr.ErrPlayerBusy, userID)
	}
	return s.ensureCovers(ctx, wager, userID)
}

// ensureCovers fails when any of the players cannot pay the wager in full.
func (s *Service) ensureCovers(ctx context.Context, wager int64, ids ...int64) error {
	if wager <= 0 {
		return nil
	}
	for _, id := range ids {
		if id == 0 {
			continue
		}
		balance, err := s.economy.GetBalance(ctx, id)
		if err != nil {
			return err
		}
		if balance < wager {
			return fmt.Errorf("%w: user %d has %d, needs %d", appErr.ErrInsufficientFunds, id, balance, wager)
		}
	}
	return nil
}

func (s *Service) launch(kind string, wager int64, challenger, opponent engine.Player, matched bool) (*engine.Coordinator, error) {
	id := uuid.NewString()
	sess := &session{startedAt: time.Now()}

	s.mu.Lock()
	if err := s.reserveLocked(id, challenger.ID, opponent.ID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sess.coord = engine.NewCoordinator(s.factories[kind](), engine.Options{
		ID:                 id,
		Kind:               kind,
		Wager:              wager,
		Challenger:         challenger,
		Opponent:           opponent,
		Clock:              s.cfg.NewClock(),
		QueueDepth:         s.cfg.QueueDepth,
		AcceptTimeoutTicks: s.cfg.AcceptTimeoutTicks,
		Seed:               s.cfg.NewSeed(),
		AutoAccept:         matched,
		Settler:            &sessionSettler{svc: s, sess: sess},
		Presenter:          s.presenter,
	})
	s.sessions[id] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sess.coord.Run(s.runCtx); err != nil {
			logger.Log.Warn("session run error", zap.String("sessionID", id), zap.Error(err))
		}
	}()

	logger.Log.Info("session created",
		zap.String("sessionID", id),
		zap.String("game", kind),
		zap.Int64("wager", wager),
		zap.Bool("matched", matched),
	)
	return sess.coord, nil
}

func (s *Service) reserveLocked(sessionID string, ids ...int64) error {
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := s.busy[id]; ok {
			return fmt.Errorf("%w: %d", appErr.ErrPlayerBusy, id)
		}
	}
	for _, id := range ids {
		if id != 0 {
			s.busy[id] = sessionID
		}
	}
	return nil
}

func (s *Service) release(sessionID string, ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if s.busy[id] == sessionID {
			delete(s.busy, id)
		}
	}
}

// Join takes the open seat of a challenge.
func (s *Service) Join(ctx context.Context, sessionID string, player engine.Player) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if player.ID == 0 {
		return appErr.ErrInvalidActor
	}
	if err := s.ensureCovers(ctx, sess.coord.Wager(), player.ID); err != nil {
		return err
	}

	s.mu.Lock()
	current, busy := s.busy[player.ID]
	if busy && current != sessionID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", appErr.ErrPlayerBusy, player.ID)
	}
	s.busy[player.ID] = sessionID
	s.mu.Unlock()

	err = sess.coord.Submit(ctx, engine.Action{
		SessionID: sessionID,
		ActorID:   player.ID,
		ActorName: player.Name,
		Kind:      engine.ActionJoin,
	})
	if err != nil && !busy {
		s.release(sessionID, player.ID)
	}
	return err
}

// Submit routes an action to its session. Joins go through Join so the busy
// guard sees them.
func (s *Service) Submit(ctx context.Context, a engine.Action) error {
	if a.Kind == engine.ActionJoin {
		return s.Join(ctx, a.SessionID, engine.Player{ID: a.ActorID, Name: a.ActorName})
	}
	sess, err := s.get(a.SessionID)
	if err != nil {
		return err
	}
	return sess.coord.Submit(ctx, a)
}

// SubmitRaw decodes a composite component id such as "{session}_pick_2".
func (s *Service) SubmitRaw(ctx context.Context, actor engine.Player, id string) error {
	a, err := engine.ParseActionID(id)
	if err != nil {
		return err
	}
	a.ActorID = actor.ID
	a.ActorName = actor.Name
	return s.Submit(ctx, a)
}

func (s *Service) Get(sessionID string) (*engine.Coordinator, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.coord, nil
}

// Snapshot returns the session state as seen by viewer.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (engine.Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return sess.coord.Snapshot(ctx)
}

// ActiveSession reports the session a player is seated in, if any.
func (s *Service) ActiveSession(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.busy[userID]
	return id, ok
}

// Active lists the ids of running sessions.
func (s *Service) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Service) get(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// Records returns the most recent finished sessions of a player.
func (s *Service) Records(ctx context.Context, userID int64, limit int) ([]model.GameRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []model.GameRecord
	err := s.db.WithContext(ctx).
		Where("winner_id = ? OR loser_id = ?", userID, userID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Shutdown aborts every running session and waits for their settlement.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sessionSettler runs once per session on the coordinator goroutine, after
// the last transition and before Done closes.
type sessionSettler struct {
	svc  *Service
	sess *session
}

func (ss *sessionSettler) SettleOutcome(ctx context.Context, sessionID string, out engine.Outcome) error {
	s := ss.svc
	defer s.closeSession(sessionID)

	err := s.economy.SettleOutcome(ctx, sessionID, out)
	if errors.Is(err, appErr.ErrAlreadySettled) {
		err = nil
	}
	if recErr := s.record(ctx, sessionID, ss.sess, out); recErr != nil {
		logger.Log.Error("game record failed", zap.String("sessionID", sessionID), zap.Error(recErr))
	}
	return err
}

// closeSession drops the session from the registry and frees every player
// still marked as seated in it.
func (s *Service) closeSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	for userID, id := range s.busy {
		if id == sessionID {
			delete(s.busy, userID)
		}
	}
}

func (s *Service) record(ctx context.Context, sessionID string, sess *session, out engine.Outcome) error {
	playersJSON, err := json.Marshal(out.Players)
	if err != nil {
		return err
	}
	rec := model.GameRecord{
		SessionID:   sessionID,
		Game:        sess.coord.Kind(),
		Outcome:     string(out.Kind),
		Reason:      out.Reason,
		Wager:       sess.coord.Wager(),
		Rounds:      out.Rounds,
		PlayersJSON: datatypes.JSON(playersJSON),
		StartedAt:   sess.startedAt,
		EndedAt:     time.Now(),
	}
	if out.Kind == engine.OutcomeDecided {
		winner, loser := out.Winner.ID, out.Loser.ID
		rec.WinnerID, rec.LoserID = &winner, &loser
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}
