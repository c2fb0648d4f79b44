package model

import (
	"time"

	"gorm.io/datatypes"
)

// 1. Accounts

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Nickname  string `gorm:"unique;not null"`
	Status    string `gorm:"default:normal;not null"` // normal/banned
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Admin struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Status       string `gorm:"default:active;not null"` // active/disabled
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// 2. Wallet & Billing

type Wallet struct {
	UserID           int64 `gorm:"primaryKey"`
	BalanceAvailable int64
	Points           int64
	TotalWin         int64
	TotalConsume     int64
	UpdatedAt        time.Time
}

// Debt is what a loser still owes after being unable to cover a wager.
// It is never forgiven; Remaining only goes down through repayment.
type Debt struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	DebtorID   int64 `gorm:"index;not null"`
	CreditorID int64 `gorm:"index;not null"`
	Amount     int64
	Remaining  int64
	SessionID  string `gorm:"size:64;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type BillingLog struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	UserID       int64
	Type         string // win/lose/debt/points/adjust
	Delta        int64
	BalanceAfter int64
	SessionID    string         `gorm:"size:64;index"`
	MetaJSON     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
}

// 3. Inventory used by games outside the session engine

type PlayerItem struct {
	UserID    int64  `gorm:"primaryKey"`
	Item      string `gorm:"primaryKey;size:64"`
	Quantity  int64
	UpdatedAt time.Time
}

type PlayerRole struct {
	UserID    int64  `gorm:"primaryKey"`
	Role      string `gorm:"primaryKey;size:64"`
	GrantedAt time.Time
}

// 4. Sessions

type GameRecord struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"size:64;uniqueIndex"`
	Game        string `gorm:"size:32;index"`
	Outcome     string `gorm:"size:16"` // decided/draw/cancelled/aborted
	Reason      string `gorm:"size:64"`
	Wager       int64
	WinnerID    *int64
	LoserID     *int64
	Rounds      int
	PlayersJSON datatypes.JSON `gorm:"type:jsonb"`
	StartedAt   time.Time
	EndedAt     time.Time
}
