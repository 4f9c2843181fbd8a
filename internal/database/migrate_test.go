package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/psds-microservice/citizen-desk/internal/config"
)

func TestPrepareSQLiteIsIdempotent(t *testing.T) {
	cfg := &config.Config{LogLevel: "error"}
	cfg.DB.Driver = config.DriverSQLite
	cfg.DB.Path = filepath.Join(t.TempDir(), "desk.db")
	ctx := context.Background()

	db, err := Prepare(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := MigrateUp(ctx, db, cfg.DB.Driver); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int64
	if err := db.Table("departments").Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("seeded departments = %d, want 10", n)
	}
	for _, table := range []string{"tickets", "replies", "audit_log", "participants"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("table %s missing", table)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = "oracle"
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error")
	}
}
