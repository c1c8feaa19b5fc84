// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/parfive/go-handle-backend/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database, applies the PRAGMAs the
// service depends on (WAL so reads don't block the rename transaction, a
// busy timeout so concurrent renames queue instead of failing) and sizes
// the connection pool.
func OpenSQLite(path string) (*gorm.DB, error) {
	// a missing parent directory surfaces as an opaque sqlite error, so
	// catch it here
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// DB spans nest under the request span via the global tracer provider;
	// a no-op when tracing is disabled.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate applies the schema for all handle-service tables, including
// the unique index on profiles.handle_lower that the rename transaction
// relies on to reject races.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Profile{},
		&domain.HandleHistory{},
		&domain.ReservedHandle{},
		&domain.Idempotency{},
	)
}
