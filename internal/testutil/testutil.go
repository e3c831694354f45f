// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/mbeoliero/tradechat/common"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory sqlite database with the schema migrated.
// A single connection keeps the in-memory database alive and serializes writers.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repository.Migrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// NewTestRepos builds repositories on a fresh test database without Redis
func NewTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	return repository.NewRepositoriesWithDB(NewTestDB(t), nil)
}

// SeedParties inserts directory entries for the given party ids
func SeedParties(t *testing.T, repos *repository.Repositories, ids ...string) {
	t.Helper()
	for _, id := range ids {
		party := &entity.Party{
			Id:          id,
			Role:        string(common.RoleOf(id)),
			DisplayName: "Party " + id,
			CompanyName: "Co " + id,
		}
		if err := repos.Party.Create(context.Background(), party); err != nil {
			t.Fatalf("failed to seed party %s: %v", id, err)
		}
	}
}
