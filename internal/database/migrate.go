package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/psds-microservice/citizen-desk/internal/config"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations
var migrationsFS embed.FS

func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"
	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	logger.Global().Info("database created", zap.String("database", dbName))
	return nil
}

// Prepare creates the postgres database if needed, opens the store and
// applies pending migrations.
func Prepare(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.Driver == config.DriverPostgres {
		if err := ensureDatabase(cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := MigrateUp(ctx, db, cfg.DB.Driver); err != nil {
		return nil, err
	}
	return db, nil
}

// MigrateUp applies the embedded migrations for driver.
func MigrateUp(ctx context.Context, db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	dialect := goose.DialectSQLite3
	if driver == config.DriverPostgres {
		dialect = goose.DialectPostgres
	}
	dir, err := fs.Sub(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("migrations for %q: %w", driver, err)
	}
	provider, err := goose.NewProvider(dialect, sqlDB, dir)
	if err != nil {
		return fmt.Errorf("migrate new: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if len(results) == 0 {
		logger.Global().Info("migrate: no pending migrations")
	}
	for _, r := range results {
		logger.Global().Info("migrate: applied",
			zap.String("source", r.Source.Path),
			zap.Duration("duration", r.Duration))
	}
	return nil
}
