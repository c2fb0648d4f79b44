package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"duel-service/internal/model"
	appErr "duel-service/pkg/errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Config struct {
	MinWager             int64
	WinnerPointsPerMille int64
	LoserPointsPerMille  int64
}

func defaultConfig() Config {
	return Config{
		MinWager:             10,
		WinnerPointsPerMille: 20,
		LoserPointsPerMille:  5,
	}
}

type Service struct {
	db     *gorm.DB
	locker Locker
	cfg    Config
}

type AdminSetWalletRequest struct {
	BalanceAvailable *int64
	Points           *int64
}

// NewService falls back to in-process locks when locker is nil. Zero config
// fields take the defaults.
func NewService(db *gorm.DB, locker Locker, cfg Config) *Service {
	def := defaultConfig()
	if cfg.MinWager <= 0 {
		cfg.MinWager = def.MinWager
	}
	if cfg.WinnerPointsPerMille <= 0 {
		cfg.WinnerPointsPerMille = def.WinnerPointsPerMille
	}
	if cfg.LoserPointsPerMille <= 0 {
		cfg.LoserPointsPerMille = def.LoserPointsPerMille
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{db: db, locker: locker, cfg: cfg}
}

func (s *Service) MinWager() int64 { return s.cfg.MinWager }

func (s *Service) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.Wallet{UserID: userID}, nil
		}
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return wallet.BalanceAvailable, nil
}

func (s *Service) AdminSetWallet(ctx context.Context, userID int64, req AdminSetWalletRequest) (*model.Wallet, error) {
	if req.BalanceAvailable == nil && req.Points == nil {
		return nil, fmt.Errorf("%w: balanceAvailable or points is required", appErr.ErrInvalidWalletPayload)
	}
	if req.BalanceAvailable != nil && *req.BalanceAvailable < 0 {
		return nil, fmt.Errorf("%w: balanceAvailable must be >= 0", appErr.ErrInvalidWalletPayload)
	}
	if req.Points != nil && *req.Points < 0 {
		return nil, fmt.Errorf("%w: points must be >= 0", appErr.ErrInvalidWalletPayload)
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var wallet *model.Wallet
	err = s.WithTx(ctx, "", func(tx *Tx) error {
		w, err := tx.wallets.Ensure(userID)
		if err != nil {
			return err
		}
		before := w.BalanceAvailable
		if req.BalanceAvailable != nil {
			w.BalanceAvailable = *req.BalanceAvailable
		}
		if req.Points != nil {
			w.Points = *req.Points
		}
		tx.log(userID, "adjust", w.BalanceAvailable-before, w.BalanceAvailable, map[string]interface{}{
			"points": w.Points,
		})
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// Debts lists the outstanding debts a player owes or is owed.
func (s *Service) Debts(ctx context.Context, userID int64) ([]model.Debt, error) {
	var debts []model.Debt
	err := s.db.WithContext(ctx).
		Where("(debtor_id = ? OR creditor_id = ?) AND remaining > 0", userID, userID).
		Order("id ASC").
		Find(&debts).Error
	return debts, err
}

func (s *Service) GetPoints(ctx context.Context, userID int64) (int64, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return wallet.Points, nil
}

func (s *Service) SetPoints(ctx context.Context, userID, points int64) error {
	_, err := s.AdminSetWallet(ctx, userID, AdminSetWalletRequest{Points: &points})
	return err
}

func (s *Service) GetItem(ctx context.Context, userID int64, item string) (int64, error) {
	var row model.PlayerItem
	err := s.db.WithContext(ctx).Where("user_id = ? AND item = ?", userID, item).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Quantity, nil
}

func (s *Service) SetItem(ctx context.Context, userID int64, item string, quantity int64) error {
	if item == "" || quantity < 0 {
		return fmt.Errorf("%w: item %q quantity %d", appErr.ErrInvalidWalletPayload, item, quantity)
	}
	row := model.PlayerItem{UserID: userID, Item: item, Quantity: quantity, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&row).Error
}

func (s *Service) GetRoles(ctx context.Context, userID int64) ([]string, error) {
	var roles []string
	err := s.db.WithContext(ctx).Model(&model.PlayerRole{}).
		Where("user_id = ?", userID).
		Order("role ASC").
		Pluck("role", &roles).Error
	return roles, err
}

// SetRole grants or revokes a role.
func (s *Service) SetRole(ctx context.Context, userID int64, role string, granted bool) error {
	if role == "" {
		return fmt.Errorf("%w: empty role", appErr.ErrInvalidWalletPayload)
	}
	db := s.db.WithContext(ctx)
	if !granted {
		return db.Where("user_id = ? AND role = ?", userID, role).Delete(&model.PlayerRole{}).Error
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.PlayerRole{UserID: userID, Role: role, GrantedAt: time.Now()}).Error
}

// Tx is the caller-controlled transaction scope for balance mutations. Wallet
// rows are locked on first touch and written back when the scope commits.
type Tx struct {
	tx        *gorm.DB
	wallets   *walletBook
	logs      []model.BillingLog
	sessionID string
	now       time.Time
}

// WithTx runs fn in one database transaction. Returning an error from fn rolls
// every mutation back.
func (s *Service) WithTx(ctx context.Context, sessionID string, fn func(tx *Tx) error) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx := &Tx{
			tx:        db,
			wallets:   newWalletBook(db),
			sessionID: sessionID,
			now:       now,
		}
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.wallets.SaveAll(now); err != nil {
			return err
		}
		if len(tx.logs) > 0 {
			if err := db.Create(&tx.logs).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Tx) Balance(userID int64) (int64, error) {
	w, err := t.wallets.Ensure(userID)
	if err != nil {
		return 0, err
	}
	return w.BalanceAvailable, nil
}

func (t *Tx) Debit(userID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: debit %d", appErr.ErrInvalidAmount, amount)
	}
	w, err := t.wallets.Ensure(userID)
	if err != nil {
		return err
	}
	if amount > w.BalanceAvailable {
		return fmt.Errorf("%w: user %d has %d, needs %d", appErr.ErrInsufficientFunds, userID, w.BalanceAvailable, amount)
	}
	if amount == 0 {
		return nil
	}
	w.BalanceAvailable -= amount
	w.TotalConsume += amount
	t.log(userID, "lose", -amount, w.BalanceAvailable, nil)
	return nil
}

func (t *Tx) Credit(userID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit %d", appErr.ErrInvalidAmount, amount)
	}
	w, err := t.wallets.Ensure(userID)
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	w.BalanceAvailable += amount
	w.TotalWin += amount
	t.log(userID, "win", amount, w.BalanceAvailable, nil)
	return nil
}

func (t *Tx) RecordDebt(debtorID, creditorID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debt %d", appErr.ErrInvalidAmount, amount)
	}
	debt := model.Debt{
		DebtorID:   debtorID,
		CreditorID: creditorID,
		Amount:     amount,
		Remaining:  amount,
		SessionID:  t.sessionID,
		CreatedAt:  t.now,
		UpdatedAt:  t.now,
	}
	if err := t.tx.Create(&debt).Error; err != nil {
		return err
	}
	w, err := t.wallets.Ensure(debtorID)
	if err != nil {
		return err
	}
	t.log(debtorID, "debt", 0, w.BalanceAvailable, map[string]interface{}{
		"creditorId": creditorID,
		"amount":     amount,
	})
	return nil
}

func (t *Tx) AddPoints(userID, points int64) error {
	if points <= 0 {
		return nil
	}
	w, err := t.wallets.Ensure(userID)
	if err != nil {
		return err
	}
	w.Points += points
	t.log(userID, "points", 0, w.BalanceAvailable, map[string]interface{}{
		"points": points,
		"total":  w.Points,
	})
	return nil
}

func (t *Tx) log(userID int64, typ string, delta, after int64, meta map[string]interface{}) {
	t.logs = append(t.logs, model.BillingLog{
		UserID:       userID,
		Type:         typ,
		Delta:        delta,
		BalanceAfter: after,
		SessionID:    t.sessionID,
		MetaJSON:     mustJSON(meta),
		CreatedAt:    t.now,
	})
}

func mustJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("{}")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

type walletBook struct {
	tx      *gorm.DB
	entries map[int64]*walletEntry
}

type walletEntry struct {
	wallet *model.Wallet
	exists bool
	dirty  bool
}

func newWalletBook(tx *gorm.DB) *walletBook {
	return &walletBook{
		tx:      tx,
		entries: make(map[int64]*walletEntry),
	}
}

func (wb *walletBook) Ensure(userID int64) (*model.Wallet, error) {
	if entry, ok := wb.entries[userID]; ok {
		entry.dirty = true
		return entry.wallet, nil
	}

	wallet := &model.Wallet{}
	err := wb.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(wallet).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		wallet = &model.Wallet{UserID: userID}
	}

	entry := &walletEntry{
		wallet: wallet,
		exists: err == nil,
		dirty:  true,
	}
	wb.entries[userID] = entry
	return wallet, nil
}

func (wb *walletBook) SaveAll(now time.Time) error {
	for _, entry := range wb.entries {
		if !entry.dirty {
			continue
		}
		entry.wallet.UpdatedAt = now
		var err error
		if entry.exists {
			err = wb.tx.Save(entry.wallet).Error
		} else {
			err = wb.tx.Create(entry.wallet).Error
			if err == nil {
				entry.exists = true
			}
		}
		if err != nil {
			return err
		}
		entry.dirty = false
	}
	return nil
}
