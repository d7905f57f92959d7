// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver, default and tests) and Postgres (production), and
// the schema migration.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// Open opens the database selected by driver ("sqlite" or "postgres").
// For sqlite the dsn is a file path; for postgres a connection URL.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return OpenSQLite(dsn)
	case "postgres", "postgresql":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// pool sizes the database/sql pool per driver. SQLite serializes writers
// anyway, so it keeps every connection idle rather than reopening files.
type pool struct {
	open, idle int
}

var (
	sqlitePool   = pool{open: 10, idle: 10}
	postgresPool = pool{open: 25, idle: 5}
)

// instrument attaches gorm's OpenTelemetry plugin, so quota and premium
// queries show up under the request span, and sizes the pool.
func instrument(db *gorm.DB, p pool) (*gorm.DB, error) {
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("gorm tracing: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(p.open)
	sqlDB.SetMaxIdleConns(p.idle)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// OpenSQLite opens (or creates) the database file at path. Unless path
// already carries query parameters, busy_timeout and foreign_keys are set in
// the DSN so every pooled connection gets them.
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing directory otherwise surfaces as an opaque "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	// WAL lets the sweeper read while a request holds the write lock.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	return instrument(db, sqlitePool)
}

// OpenPostgres connects to Postgres through pgx.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DATABASE_URL is required for postgres")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return instrument(db, postgresPool)
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.PremiumToken{},
		&domain.UserLimits{},
		&domain.WebUserLimits{},
		&domain.Ad{},
		&domain.Referral{},
		&domain.PremiumTransaction{},
		&domain.Idempotency{},
	)
}
