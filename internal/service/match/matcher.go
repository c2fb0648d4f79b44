package match

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	appErr "duel-service/pkg/errors"
	"duel-service/pkg/logger"
	netutil "duel-service/pkg/utils/net"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func (s *Service) runMatcher(ctx context.Context) {
	logger.Log.Info("matcher started", zap.Duration("interval", s.cfg.MatcherInterval))

	ticker := time.NewTicker(s.cfg.MatcherInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("matcher stopped")
			return
		case <-ticker.C:
			s.composeAll(ctx)
		}
	}
}

func (s *Service) composeAll(ctx context.Context) {
	keys, err := s.rdb.SMembers(ctx, bucketSetKey).Result()
	if err != nil {
		logger.Log.Warn("matcher bucket scan error", zap.Error(err))
		return
	}
	for _, key := range keys {
		b, ok := parseQueueKey(key)
		if !ok {
			s.rdb.SRem(ctx, bucketSetKey, key)
			continue
		}
		if err := s.tryCompose(ctx, b); err != nil {
			logger.Log.Warn("matcher compose error",
				zap.String("queue", key),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) tryCompose(ctx context.Context, b bucket) error {
	queueKey := buildQueueKey(b)
	if err := s.cleanupExpiredQueue(ctx, queueKey); err != nil {
		logger.Log.Warn("queue cleanup error",
			zap.String("queue", queueKey),
			zap.Error(err),
		)
	}

	members, err := s.rdb.ZRange(ctx, queueKey, 0, int64(s.cfg.CandidateLimit-1)).Result()
	if err != nil {
		return err
	}
	if len(members) == 0 {
		s.rdb.SRem(ctx, bucketSetKey, queueKey)
		return nil
	}
	if len(members) < 2 {
		return nil
	}

	candidates := make([]queueMember, 0, len(members))
	for _, m := range members {
		userID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		qm, err := s.loadQueueMember(ctx, userID)
		if err != nil {
			if errors.Is(err, errQueueMemberNotFound) {
				s.rdb.ZRem(ctx, queueKey, m)
				continue
			}
			return err
		}
		candidates = append(candidates, qm)
	}

	for {
		pair, ok := selectPair(candidates, s.cfg.SplitSubnets)
		if !ok {
			return nil
		}
		if err := s.composeSession(ctx, b, pair); err != nil {
			return err
		}
		candidates = without(candidates, pair)
	}
}

// selectPair takes the longest-waiting player and the earliest queued partner
// that passes the network check.
func selectPair(candidates []queueMember, splitSubnets bool) ([2]queueMember, bool) {
	for i, first := range candidates {
		for _, second := range candidates[i+1:] {
			if first.UserID == second.UserID {
				continue
			}
			if splitSubnets && netutil.SameNetwork(first.IP, second.IP) {
				continue
			}
			return [2]queueMember{first, second}, true
		}
	}
	return [2]queueMember{}, false
}

func without(candidates []queueMember, pair [2]queueMember) []queueMember {
	out := candidates[:0]
	for _, c := range candidates {
		if c.UserID != pair[0].UserID && c.UserID != pair[1].UserID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) composeSession(ctx context.Context, b bucket, pair [2]queueMember) error {
	queueKey := buildQueueKey(b)

	// Balances move while players wait; drop whoever can no longer sit down.
	// The other player keeps their place for the next round.
	eligible := true
	for _, player := range pair {
		if err := s.sessions.CheckStake(ctx, player.UserID, b.Wager); err != nil {
			eligible = false
			logger.Log.Info("queued player no longer eligible",
				zap.Int64("userID", player.UserID),
				zap.String("queue", queueKey),
				zap.Error(err),
			)
			if cerr := s.CancelQueue(ctx, CancelQueueRequest{UserID: player.UserID, Reason: "ineligible"}); cerr != nil && !errors.Is(cerr, appErr.ErrNotInQueue) {
				return cerr
			}
		}
	}
	if !eligible {
		return nil
	}

	for i, player := range pair {
		removed, err := s.rdb.ZRem(ctx, queueKey, strconv.FormatInt(player.UserID, 10)).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			// Another node took this player; give the partner back its place.
			if i == 1 {
				s.requeue(ctx, queueKey, pair[0])
			}
			return nil
		}
	}
	for _, player := range pair {
		s.removeQueueMember(ctx, player.UserID)
	}

	coord, err := s.sessions.StartMatched(ctx, b.Kind, b.Wager, pair[0].player(), pair[1].player())
	if err != nil {
		logger.Log.Warn("matched session failed to start",
			zap.String("game", b.Kind),
			zap.Int64("a", pair[0].UserID),
			zap.Int64("b", pair[1].UserID),
			zap.Error(err),
		)
		for _, player := range pair {
			if s.sessions.CheckStake(ctx, player.UserID, b.Wager) == nil {
				s.requeue(ctx, queueKey, player)
			}
		}
		return nil
	}

	data, _ := json.Marshal(matchNotifyPayload{Kind: b.Kind, Wager: b.Wager, SessionID: coord.ID()})
	for _, player := range pair {
		s.rdb.Set(ctx, buildMatchNotifyKey(player.UserID), data, s.cfg.MatchedNotifyTTL)
	}

	logger.Log.Info("match composed",
		zap.String("game", b.Kind),
		zap.Int64("wager", b.Wager),
		zap.String("sessionID", coord.ID()),
	)
	return nil
}

// requeue puts a player back at their original position with a fresh member
// record.
func (s *Service) requeue(ctx context.Context, queueKey string, member queueMember) {
	if err := s.saveQueueMember(ctx, member); err != nil {
		logger.Log.Warn("requeue failed",
			zap.Int64("userID", member.UserID),
			zap.String("queue", queueKey),
			zap.Error(err),
		)
		return
	}
	s.rdb.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(member.JoinedAt.UnixMilli()),
		Member: strconv.FormatInt(member.UserID, 10),
	})
}
