package user_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"duel-service/internal/config"
	"duel-service/internal/model"
	usersvc "duel-service/internal/service/user"
	pkgAuth "duel-service/pkg/auth"
	appErr "duel-service/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *usersvc.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}); err != nil {
		t.Fatalf("failed to migrate user model: %v", err)
	}
	config.GlobalConfig = &config.Config{JWT: config.JWTConfig{Secret: "test-secret", Expire: 1}}
	return usersvc.NewService(db)
}

func TestLoginRegistersOnceAndIssuesUserToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !first.Created || first.User.Nickname != "alice" {
		t.Fatalf("expected a new user, got %+v", first)
	}
	claims, err := pkgAuth.ParseUserToken(first.Token)
	if err != nil || claims.SubjectID != first.User.ID {
		t.Fatalf("token does not identify the user: %+v %v", claims, err)
	}

	again, err := svc.Login(ctx, "  alice ")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if again.Created || again.User.ID != first.User.ID {
		t.Fatalf("expected the same account, got %+v", again)
	}
}

func TestGuestLoginGetsGeneratedName(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.Login(context.Background(), "")
	if err != nil {
		t.Fatalf("guest login failed: %v", err)
	}
	if !strings.HasPrefix(res.User.Nickname, "guest-") || len(res.User.Nickname) != len("guest-")+6 {
		t.Fatalf("unexpected guest nickname %q", res.User.Nickname)
	}
}

func TestInvalidNicknames(t *testing.T) {
	svc := newTestService(t)
	for _, name := range []string{"two words", strings.Repeat("x", 33)} {
		if _, err := svc.Login(context.Background(), name); !errors.Is(err, appErr.ErrInvalidNickname) {
			t.Fatalf("%q: expected ErrInvalidNickname, got %v", name, err)
		}
	}
}

func TestBannedUserIsLockedOut(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "mallory")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := svc.AdminUpdateUserStatus(ctx, res.User.ID, "BANNED", "cheating"); err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	if _, err := svc.Login(ctx, "mallory"); !errors.Is(err, appErr.ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned on login, got %v", err)
	}
	if _, err := svc.Player(ctx, res.User.ID); !errors.Is(err, appErr.ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned for seating, got %v", err)
	}
	if _, err := svc.AdminUpdateUserStatus(ctx, res.User.ID, "frozen", ""); !errors.Is(err, appErr.ErrInvalidUserStatus) {
		t.Fatalf("expected ErrInvalidUserStatus, got %v", err)
	}
	if _, err := svc.AdminUpdateUserStatus(ctx, 999, "normal", ""); !errors.Is(err, appErr.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateNicknameRejectsTakenNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Login(ctx, "alice")
	if _, err := svc.Login(ctx, "bob"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := svc.UpdateNickname(ctx, a.User.ID, "bob"); !errors.Is(err, appErr.ErrInvalidNickname) {
		t.Fatalf("expected taken nickname to be rejected, got %v", err)
	}
	u, err := svc.UpdateNickname(ctx, a.User.ID, "alicia")
	if err != nil || u.Nickname != "alicia" {
		t.Fatalf("rename failed: %+v %v", u, err)
	}
	p, err := svc.Player(ctx, a.User.ID)
	if err != nil || p.Name != "alicia" {
		t.Fatalf("player should carry the new name: %+v %v", p, err)
	}
}

func TestAdminListUsersFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, n := range []string{"alice", "alfred", "bob"} {
		if _, err := svc.Login(ctx, n); err != nil {
			t.Fatalf("login failed: %v", err)
		}
	}
	res, err := svc.AdminListUsers(ctx, usersvc.AdminListUsersFilter{NicknameKeyword: "al"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if res.Total != 2 || len(res.Items) != 2 || res.Items[0].Nickname != "alfred" {
		t.Fatalf("unexpected listing: %+v", res)
	}
}
