// Package databasetest opens migrated throwaway SQLite stores for tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/psds-microservice/citizen-desk/internal/config"
	"github.com/psds-microservice/citizen-desk/internal/database"
)

// Open returns a migrated store in t's temp dir, closed on cleanup.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &config.Config{LogLevel: "error"}
	cfg.DB.Driver = config.DriverSQLite
	cfg.DB.Path = filepath.Join(t.TempDir(), "test.db")
	db, err := database.Prepare(context.Background(), cfg)
	if err != nil {
		t.Fatalf("prepare db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
