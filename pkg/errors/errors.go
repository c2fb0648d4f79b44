package errors

import "errors"

// Session engine rejections. Only ErrPersistenceFailure is fatal to a session;
// the rest leave session state unchanged.
var (
	ErrInvalidActor       = errors.New("actor is not entitled to act")
	ErrDuplicateAction    = errors.New("player already acted in this phase")
	ErrPhaseClosed        = errors.New("phase is closed")
	ErrInvalidSelection   = errors.New("invalid selection")
	ErrUnknownAction      = errors.New("unknown action")
	ErrGameFull           = errors.New("game is full")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrSignalQueueFull    = errors.New("signal queue full")
	ErrSignalQueueClosed  = errors.New("signal queue closed")
)

// Session lifecycle.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrPlayerBusy      = errors.New("player already in a session")
	ErrInvalidPlayers  = errors.New("a session needs two distinct players")
	ErrUnknownGame     = errors.New("unknown game kind")
)

// Economy.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAmountTooSmall       = errors.New("amount below minimum")
	ErrSettlementValidation = errors.New("invalid settlement request")
	ErrAlreadySettled       = errors.New("session already settled")
	ErrInvalidWalletPayload = errors.New("invalid wallet payload")
	ErrLockTimeout          = errors.New("player lock timeout")
)

// Matchmaking.
var (
	ErrAlreadyInQueue  = errors.New("already in queue")
	ErrQueueProcessing = errors.New("queue request in progress")
	ErrNotInQueue      = errors.New("not in queue")
	ErrMatchDisabled   = errors.New("quick match is not available")
)

// Accounts.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserBanned           = errors.New("user is banned")
	ErrInvalidUserStatus    = errors.New("invalid user status")
	ErrInvalidNickname      = errors.New("invalid nickname")
	ErrAdminNotFound        = errors.New("admin not found")
	ErrAdminDisabled        = errors.New("admin disabled")
	ErrInvalidAdminPassword = errors.New("invalid admin credentials")
)
