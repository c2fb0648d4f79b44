package economy

import (
	"context"
	"errors"
	"fmt"

	"duel-service/internal/engine"
	"duel-service/internal/model"
	appErr "duel-service/pkg/errors"
	"duel-service/pkg/logger"

	"go.uber.org/zap"
)

type SettleRequest struct {
	SessionID string
	WinnerID  int64
	LoserID   int64
	Amount    int64
}

type SettleResult struct {
	Transferred   int64 `json:"transferred"`
	Debt          int64 `json:"debt"`
	WinnerPoints  int64 `json:"winnerPoints"`
	LoserPoints   int64 `json:"loserPoints"`
	WinnerBalance int64 `json:"winnerBalance"`
	LoserBalance  int64 `json:"loserBalance"`
}

// Settle moves a lost wager from loser to winner. A loser who cannot cover the
// amount pays what they have and owes the rest as a debt. Both players get
// points. Everything commits together or not at all; any storage failure is
// reported as ErrPersistenceFailure.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if req.WinnerID == 0 || req.LoserID == 0 || req.WinnerID == req.LoserID {
		return nil, fmt.Errorf("%w: players %d/%d", appErr.ErrSettlementValidation, req.WinnerID, req.LoserID)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount %d", appErr.ErrSettlementValidation, req.Amount)
	}

	unlock, err := lockPair(ctx, s.locker, req.WinnerID, req.LoserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	defer unlock()

	result := &SettleResult{
		WinnerPoints: req.Amount * s.cfg.WinnerPointsPerMille / 1000,
		LoserPoints:  req.Amount * s.cfg.LoserPointsPerMille / 1000,
	}
	err = s.WithTx(ctx, req.SessionID, func(tx *Tx) error {
		if req.SessionID != "" {
			var settled int64
			if err := tx.tx.Model(&model.BillingLog{}).
				Where("session_id = ? AND type IN ?", req.SessionID, []string{"win", "lose", "debt"}).
				Count(&settled).Error; err != nil {
				return err
			}
			if settled > 0 {
				return appErr.ErrAlreadySettled
			}
		}

		available, err := tx.Balance(req.LoserID)
		if err != nil {
			return err
		}
		result.Transferred = min(available, req.Amount)
		result.Debt = req.Amount - result.Transferred

		if err := tx.Debit(req.LoserID, result.Transferred); err != nil {
			return err
		}
		if err := tx.Credit(req.WinnerID, result.Transferred); err != nil {
			return err
		}
		if result.Debt > 0 {
			if err := tx.RecordDebt(req.LoserID, req.WinnerID, result.Debt); err != nil {
				return err
			}
		}
		if err := tx.AddPoints(req.WinnerID, result.WinnerPoints); err != nil {
			return err
		}
		if err := tx.AddPoints(req.LoserID, result.LoserPoints); err != nil {
			return err
		}

		if result.WinnerBalance, err = tx.Balance(req.WinnerID); err != nil {
			return err
		}
		result.LoserBalance, err = tx.Balance(req.LoserID)
		return err
	})
	if err != nil {
		if errors.Is(err, appErr.ErrAlreadySettled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: settle %s: %w", appErr.ErrPersistenceFailure, req.SessionID, err)
	}

	logger.Log.Info("wager settled",
		zap.String("sessionID", req.SessionID),
		zap.Int64("winner", req.WinnerID),
		zap.Int64("loser", req.LoserID),
		zap.Int64("amount", req.Amount),
		zap.Int64("transferred", result.Transferred),
		zap.Int64("debt", result.Debt),
	)
	return result, nil
}

// SettleOutcome implements engine.Settler. Only decided games move money.
func (s *Service) SettleOutcome(ctx context.Context, sessionID string, out engine.Outcome) error {
	if out.Kind != engine.OutcomeDecided || out.Amount <= 0 {
		return nil
	}
	_, err := s.Settle(ctx, SettleRequest{
		SessionID: sessionID,
		WinnerID:  out.Winner.ID,
		LoserID:   out.Loser.ID,
		Amount:    out.Amount,
	})
	return err
}
