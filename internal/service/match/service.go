// Package match pairs players who queue for the same game at the same wager.
// The queue lives in Redis so several API nodes can feed one matcher.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	appErr "duel-service/pkg/errors"
	"duel-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var errQueueMemberNotFound = errors.New("queue member not found")

const bucketSetKey = "queue:buckets"

type Config struct {
	QueueLockTTL     time.Duration
	QueueMemberTTL   time.Duration
	QueueTimeout     time.Duration
	MatchedNotifyTTL time.Duration
	MatcherInterval  time.Duration
	CandidateLimit   int
	// SplitSubnets refuses to pair two players from the same network.
	SplitSubnets bool
}

func DefaultConfig() Config {
	return Config{
		QueueLockTTL:     10 * time.Second,
		QueueMemberTTL:   3 * time.Minute,
		QueueTimeout:     3 * time.Minute,
		MatchedNotifyTTL: 5 * time.Minute,
		MatcherInterval:  500 * time.Millisecond,
		CandidateLimit:   16,
		SplitSubnets:     true,
	}
}

type Service struct {
	rdb      *redis.Client
	sessions Sessions
	cfg      Config

	startOnce sync.Once
}

// NewService returns a disabled service when rdb is nil; every call then
// fails with ErrMatchDisabled.
func NewService(rdb *redis.Client, sessions Sessions, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.QueueLockTTL <= 0 {
		cfg.QueueLockTTL = def.QueueLockTTL
	}
	if cfg.QueueMemberTTL <= 0 {
		cfg.QueueMemberTTL = def.QueueMemberTTL
	}
	if cfg.MatchedNotifyTTL <= 0 {
		cfg.MatchedNotifyTTL = def.MatchedNotifyTTL
	}
	if cfg.MatcherInterval <= 0 {
		cfg.MatcherInterval = def.MatcherInterval
	}
	if cfg.CandidateLimit < 2 {
		cfg.CandidateLimit = def.CandidateLimit
	}
	return &Service{rdb: rdb, sessions: sessions, cfg: cfg}
}

func (s *Service) Enabled() bool { return s.rdb != nil }

func (s *Service) Start(ctx context.Context) error {
	if !s.Enabled() {
		logger.Log.Warn("quick match disabled: no redis")
		return nil
	}
	s.startOnce.Do(func() {
		go s.runMatcher(ctx)
	})
	return nil
}

func (s *Service) JoinQueue(ctx context.Context, req JoinQueueRequest) (*StatusResult, error) {
	if !s.Enabled() {
		return nil, appErr.ErrMatchDisabled
	}
	if !s.sessions.HasKind(req.Kind) {
		return nil, fmt.Errorf("%w: %q", appErr.ErrUnknownGame, req.Kind)
	}
	if _, busy := s.sessions.ActiveSession(req.Player.ID); busy {
		return nil, appErr.ErrPlayerBusy
	}
	wager, err := s.sessions.ResolveWager(ctx, req.Player.ID, req.Amount)
	if err != nil {
		return nil, err
	}

	memberKey := buildQueueMemberKey(req.Player.ID)
	if n, err := s.rdb.Exists(ctx, memberKey).Result(); err != nil {
		return nil, err
	} else if n > 0 {
		return nil, appErr.ErrAlreadyInQueue
	}

	lockKey := buildQueueLockKey(req.Player.ID)
	gotLock, err := s.rdb.SetNX(ctx, lockKey, req.Kind, s.cfg.QueueLockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !gotLock {
		return nil, appErr.ErrQueueProcessing
	}
	defer s.rdb.Del(ctx, lockKey)

	// A stale match notice would make the status look matched again.
	s.rdb.Del(ctx, buildMatchNotifyKey(req.Player.ID))

	member := queueMember{
		UserID:   req.Player.ID,
		Name:     req.Player.Name,
		Kind:     req.Kind,
		Wager:    wager,
		IP:       req.IP,
		JoinedAt: time.Now(),
	}
	if err := s.saveQueueMember(ctx, member); err != nil {
		return nil, err
	}

	b := bucket{Kind: req.Kind, Wager: wager}
	queueKey := buildQueueKey(b)
	score := float64(member.JoinedAt.UnixMilli())
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: strconv.FormatInt(req.Player.ID, 10)})
	pipe.SAdd(ctx, bucketSetKey, queueKey)
	if _, err := pipe.Exec(ctx); err != nil {
		s.removeQueueMember(ctx, req.Player.ID)
		return nil, err
	}

	logger.Log.Info("user joined queue",
		zap.Int64("userID", req.Player.ID),
		zap.String("game", req.Kind),
		zap.Int64("wager", wager),
	)

	joined := member.JoinedAt
	return &StatusResult{Status: QueueStatusQueued, Kind: req.Kind, Wager: wager, JoinedAt: &joined}, nil
}

func (s *Service) CancelQueue(ctx context.Context, req CancelQueueRequest) error {
	if !s.Enabled() {
		return appErr.ErrMatchDisabled
	}
	member, err := s.loadQueueMember(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, errQueueMemberNotFound) {
			return appErr.ErrNotInQueue
		}
		return err
	}
	queueKey := buildQueueKey(bucket{Kind: member.Kind, Wager: member.Wager})
	if err := s.rdb.ZRem(ctx, queueKey, strconv.FormatInt(req.UserID, 10)).Err(); err != nil && err != redis.Nil {
		return err
	}
	s.removeQueueMember(ctx, req.UserID)

	reason := req.Reason
	if reason == "" {
		reason = "user"
	}
	logger.Log.Info("queue cancelled",
		zap.Int64("userID", req.UserID),
		zap.String("game", member.Kind),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) GetStatus(ctx context.Context, userID int64) (*StatusResult, error) {
	if !s.Enabled() {
		return nil, appErr.ErrMatchDisabled
	}
	payloadStr, err := s.rdb.Get(ctx, buildMatchNotifyKey(userID)).Result()
	if err == nil {
		var payload matchNotifyPayload
		if jsonErr := json.Unmarshal([]byte(payloadStr), &payload); jsonErr == nil {
			return &StatusResult{
				Status:    QueueStatusMatched,
				Kind:      payload.Kind,
				Wager:     payload.Wager,
				SessionID: payload.SessionID,
			}, nil
		}
	} else if err != redis.Nil {
		return nil, err
	}

	member, err := s.loadQueueMember(ctx, userID)
	if err == nil {
		joined := member.JoinedAt
		return &StatusResult{
			Status:   QueueStatusQueued,
			Kind:     member.Kind,
			Wager:    member.Wager,
			JoinedAt: &joined,
		}, nil
	}
	if !errors.Is(err, errQueueMemberNotFound) {
		return nil, err
	}
	return &StatusResult{Status: QueueStatusIdle}, nil
}

func (s *Service) saveQueueMember(ctx context.Context, member queueMember) error {
	data, err := json.Marshal(member)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, buildQueueMemberKey(member.UserID), data, s.cfg.QueueMemberTTL).Err()
}

func (s *Service) loadQueueMember(ctx context.Context, userID int64) (queueMember, error) {
	var member queueMember
	data, err := s.rdb.Get(ctx, buildQueueMemberKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return member, errQueueMemberNotFound
		}
		return member, err
	}
	if err := json.Unmarshal([]byte(data), &member); err != nil {
		return member, err
	}
	return member, nil
}

func (s *Service) removeQueueMember(ctx context.Context, userID int64) {
	s.rdb.Del(ctx, buildQueueMemberKey(userID))
}

func (s *Service) cleanupExpiredQueue(ctx context.Context, queueKey string) error {
	if s.cfg.QueueTimeout <= 0 {
		return nil
	}
	deadline := time.Now().Add(-s.cfg.QueueTimeout).UnixMilli()
	members, err := s.rdb.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(deadline, 10),
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}

	for _, m := range members {
		userID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.rdb.ZRem(ctx, queueKey, m)
			continue
		}
		if err := s.CancelQueue(ctx, CancelQueueRequest{UserID: userID, Reason: "timeout"}); err != nil {
			// The member record expired first; drop the dangling entry.
			s.rdb.ZRem(ctx, queueKey, m)
			logger.Log.Warn("queue timeout cancel failed",
				zap.Int64("userID", userID),
				zap.String("queue", queueKey),
				zap.Error(err),
			)
		}
	}
	return nil
}

func buildQueueKey(b bucket) string {
	return fmt.Sprintf("queue:%s:%d", b.Kind, b.Wager)
}

func parseQueueKey(key string) (bucket, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "queue" {
		return bucket{}, false
	}
	wager, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return bucket{}, false
	}
	return bucket{Kind: parts[1], Wager: wager}, true
}

func buildQueueMemberKey(userID int64) string {
	return fmt.Sprintf("queue:member:%d", userID)
}

func buildQueueLockKey(userID int64) string {
	return fmt.Sprintf("queue:lock:%d", userID)
}

func buildMatchNotifyKey(userID int64) string {
	return fmt.Sprintf("match:pending:%d", userID)
}
