package user

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"duel-service/internal/engine"
	"duel-service/internal/model"
	pkgAuth "duel-service/pkg/auth"
	appErr "duel-service/pkg/errors"
	"duel-service/pkg/logger"
	"duel-service/pkg/utils/random"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAdminUserPageSize = 20
	maxAdminUserPageSize     = 100

	maxNicknameLen = 32
	guestPrefix    = "guest-"

	StatusNormal = "normal"
	StatusBanned = "banned"
)

type Service struct {
	db *gorm.DB
}

type LoginResult struct {
	Token    string      `json:"token"`
	ExpireAt time.Time   `json:"expireAt"`
	User     *model.User `json:"user"`
	Created  bool        `json:"created"`
}

type AdminListUsersFilter struct {
	Page            int
	Size            int
	Status          string
	NicknameKeyword string
}

type AdminListUsersResult struct {
	Items []model.User
	Total int64
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (f *AdminListUsersFilter) sanitize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = defaultAdminUserPageSize
	}
	if f.Size > maxAdminUserPageSize {
		f.Size = maxAdminUserPageSize
	}
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.NicknameKeyword = strings.TrimSpace(f.NicknameKeyword)
}

func applyAdminUserFilters(db *gorm.DB, filter AdminListUsersFilter) *gorm.DB {
	if filter.Status != "" {
		db = db.Where("LOWER(status) = ?", filter.Status)
	}
	if filter.NicknameKeyword != "" {
		like := "%" + filter.NicknameKeyword + "%"
		db = db.Where("nickname LIKE ?", like)
	}
	return db
}

func normalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return guestPrefix + random.Code(6), nil
	}
	if utf8.RuneCountInString(nickname) > maxNicknameLen || strings.ContainsAny(nickname, " \t\r\n") {
		return "", appErr.ErrInvalidNickname
	}
	return nickname, nil
}

// Login signs a player in by nickname, registering it on first use. An empty
// nickname gets a generated guest name.
func (s *Service) Login(ctx context.Context, nickname string) (*LoginResult, error) {
	nickname, err := normalizeNickname(nickname)
	if err != nil {
		return nil, err
	}

	var user model.User
	created := false
	err = s.db.WithContext(ctx).Where("nickname = ?", nickname).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{Nickname: nickname, Status: StatusNormal}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, err
		}
		created = true
		logger.Log.Info("user registered", zap.Int64("userID", user.ID), zap.String("nickname", nickname))
	case err != nil:
		return nil, err
	}
	if user.Status == StatusBanned {
		return nil, appErr.ErrUserBanned
	}

	token, err := pkgAuth.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:    token,
		ExpireAt: time.Now().Add(pkgAuth.TokenTTL()),
		User:     &user,
		Created:  created,
	}, nil
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Player resolves a user into a seat-ready player, refusing banned accounts.
func (s *Service) Player(ctx context.Context, userID int64) (engine.Player, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return engine.Player{}, err
	}
	if user.Status == StatusBanned {
		return engine.Player{}, appErr.ErrUserBanned
	}
	return engine.Player{ID: user.ID, Name: user.Nickname}, nil
}

func (s *Service) UpdateNickname(ctx context.Context, userID int64, nickname string) (*model.User, error) {
	if strings.TrimSpace(nickname) == "" {
		return nil, appErr.ErrInvalidNickname
	}
	nickname, err := normalizeNickname(nickname)
	if err != nil {
		return nil, err
	}
	var taken int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("nickname = ? AND id <> ?", nickname, userID).
		Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, appErr.ErrInvalidNickname
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("nickname", nickname)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, appErr.ErrUserNotFound
	}
	return s.GetProfile(ctx, userID)
}

func (s *Service) AdminListUsers(ctx context.Context, filter AdminListUsersFilter) (*AdminListUsersResult, error) {
	filter.sanitize()

	countQuery := applyAdminUserFilters(s.db.WithContext(ctx).Model(&model.User{}), filter)
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}

	result := &AdminListUsersResult{
		Items: make([]model.User, 0),
		Total: total,
	}
	if total == 0 {
		return result, nil
	}

	dataQuery := applyAdminUserFilters(s.db.WithContext(ctx).Model(&model.User{}), filter)
	if err := dataQuery.
		Order("id DESC").
		Limit(filter.Size).
		Offset((filter.Page - 1) * filter.Size).
		Find(&result.Items).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) AdminUpdateUserStatus(ctx context.Context, userID int64, status, reason string) (*model.User, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != StatusNormal && status != StatusBanned {
		return nil, appErr.ErrInvalidUserStatus
	}
	reason = strings.TrimSpace(reason)

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, appErr.ErrUserNotFound
	}

	logger.Log.Info("admin updated user status",
		zap.Int64("userID", userID),
		zap.String("status", status),
		zap.String("reason", reason))

	return s.GetProfile(ctx, userID)
}
