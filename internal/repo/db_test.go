package repo_test

import (
	"testing"

	"duel-service/internal/config"
	"duel-service/internal/model"
	"duel-service/internal/repo"
)

func TestOpenSqliteMigratesEveryModel(t *testing.T) {
	db, err := repo.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	for _, m := range repo.Models() {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("table for %T not migrated", m)
		}
	}
	if err := db.Create(&model.User{Nickname: "alice"}).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}
}
