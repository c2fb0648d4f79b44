package auth_test

import (
	"errors"
	"testing"

	"duel-service/internal/config"
	pkgAuth "duel-service/pkg/auth"
)

func setup() {
	config.GlobalConfig = &config.Config{JWT: config.JWTConfig{Secret: "test-secret", Expire: 1}}
}

func TestUserTokenRoundTrip(t *testing.T) {
	setup()
	token, err := pkgAuth.GenerateToken(42)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	claims, err := pkgAuth.ParseUserToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.SubjectID != 42 || claims.Scope != pkgAuth.ScopeUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestScopesDoNotMix(t *testing.T) {
	setup()
	adminToken, _ := pkgAuth.GenerateAdminToken(1)
	if _, err := pkgAuth.ParseUserToken(adminToken); !errors.Is(err, pkgAuth.ErrWrongScope) {
		t.Fatalf("admin token must not pass as user token, got %v", err)
	}
	userToken, _ := pkgAuth.GenerateToken(1)
	if _, err := pkgAuth.ParseAdminToken(userToken); !errors.Is(err, pkgAuth.ErrWrongScope) {
		t.Fatalf("user token must not pass as admin token, got %v", err)
	}
}

func TestForeignSecretRejected(t *testing.T) {
	setup()
	token, _ := pkgAuth.GenerateToken(7)
	config.GlobalConfig.JWT.Secret = "rotated"
	if _, err := pkgAuth.ParseUserToken(token); err == nil {
		t.Fatalf("token signed with another secret must fail")
	}
}
