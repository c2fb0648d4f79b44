package service_test

import (
	"context"
	"testing"
	"time"

	"duel-service/internal/config"
	"duel-service/internal/repo"
	"duel-service/internal/rules"
	"duel-service/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults failed: %v", err)
	}
	cfg.JWT.Secret = "test-secret"
	cfg.Admin = config.AdminSeedConfig{DefaultUsername: "root", DefaultPassword: "Bootstrap@123"}
	config.GlobalConfig = cfg
	return cfg
}

func TestGameConfigMapsSections(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.TickMillis = 250
	cfg.Games.DropCheck.Slots = 7
	cfg.Games.Duel.Outcomes = []rules.Override{{Weapon: "axe", Shield: "mirror", Reaction: "hit", Damage: 5}}

	gc, err := service.GameConfig(cfg)
	if err != nil {
		t.Fatalf("game config failed: %v", err)
	}
	if gc.TickPeriod != 250*time.Millisecond || gc.DropCheck.Slots != 7 {
		t.Fatalf("unexpected game config: %+v", gc)
	}
	entry, err := gc.Duel.Outcomes.Resolve(rules.Axe, rules.Mirror)
	if err != nil || entry.Reaction != rules.Hit || entry.Damage != 5 {
		t.Fatalf("override not applied: %+v %v", entry, err)
	}
}

func TestGameConfigRejectsBrokenOverrides(t *testing.T) {
	cfg := testConfig(t)
	cfg.Games.Duel.Outcomes = []rules.Override{{Weapon: "club", Shield: "mirror", Reaction: "hit", Damage: 5}}
	if _, err := service.GameConfig(cfg); err == nil {
		t.Fatalf("unknown weapon should fail")
	}
}

func TestContainerRunsWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	db, err := repo.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("open db failed: %v", err)
	}
	c, err := service.NewContainer(db, nil, cfg)
	if err != nil {
		t.Fatalf("container failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if c.Match.Enabled() {
		t.Fatalf("quick match needs redis")
	}
	if _, err := c.Admin.Login(ctx, "root", "Bootstrap@123"); err != nil {
		t.Fatalf("seeded admin cannot log in: %v", err)
	}
	if len(c.Game.Kinds()) != 5 {
		t.Fatalf("expected five game kinds, got %v", c.Game.Kinds())
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := c.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}
