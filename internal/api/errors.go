package api

import (
	"errors"
	"net/http"

	appErr "duel-service/pkg/errors"
	"duel-service/pkg/logger"
	"duel-service/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order with errors.Is; the first hit wins.
var errorTable = []errorMapping{
	{appErr.ErrInvalidActor, http.StatusForbidden, "invalid_actor"},
	{appErr.ErrDuplicateAction, http.StatusConflict, "duplicate_action"},
	{appErr.ErrPhaseClosed, http.StatusConflict, "phase_closed"},
	{appErr.ErrInvalidSelection, http.StatusBadRequest, "invalid_selection"},
	{appErr.ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
	{appErr.ErrGameFull, http.StatusConflict, "game_full"},
	{appErr.ErrSignalQueueFull, http.StatusServiceUnavailable, "busy"},
	{appErr.ErrSignalQueueClosed, http.StatusGone, "session_closed"},
	{appErr.ErrPersistenceFailure, http.StatusInternalServerError, "persistence_failure"},

	{appErr.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{appErr.ErrSessionClosed, http.StatusGone, "session_closed"},
	{appErr.ErrPlayerBusy, http.StatusConflict, "player_busy"},
	{appErr.ErrInvalidPlayers, http.StatusBadRequest, "invalid_players"},
	{appErr.ErrUnknownGame, http.StatusBadRequest, "unknown_game"},

	{appErr.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{appErr.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{appErr.ErrAmountTooSmall, http.StatusBadRequest, "amount_too_small"},
	{appErr.ErrInvalidWalletPayload, http.StatusBadRequest, "invalid_wallet_payload"},
	{appErr.ErrSettlementValidation, http.StatusBadRequest, "invalid_settlement"},
	{appErr.ErrAlreadySettled, http.StatusConflict, "already_settled"},
	{appErr.ErrLockTimeout, http.StatusServiceUnavailable, "lock_timeout"},

	{appErr.ErrAlreadyInQueue, http.StatusConflict, "already_in_queue"},
	{appErr.ErrQueueProcessing, http.StatusTooManyRequests, "queue_processing"},
	{appErr.ErrNotInQueue, http.StatusNotFound, "not_in_queue"},
	{appErr.ErrMatchDisabled, http.StatusServiceUnavailable, "match_disabled"},

	{appErr.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{appErr.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{appErr.ErrUserBanned, http.StatusForbidden, "user_banned"},
	{appErr.ErrInvalidNickname, http.StatusBadRequest, "invalid_nickname"},
	{appErr.ErrInvalidUserStatus, http.StatusBadRequest, "invalid_user_status"},
	{appErr.ErrAdminNotFound, http.StatusUnauthorized, "invalid_credentials"},
	{appErr.ErrInvalidAdminPassword, http.StatusUnauthorized, "invalid_credentials"},
	{appErr.ErrAdminDisabled, http.StatusForbidden, "admin_disabled"},
}

func statusOf(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func fail(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Fail(c, status, code, err.Error())
}
