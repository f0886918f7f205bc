// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database, applies PRAGMAs and
// attaches the OpenTelemetry GORM plugin so queries show up as spans.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{
		// Timestamps are stored as TEXT; a single zone keeps them comparable.
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// withPragmas adds per-connection PRAGMAs to the DSN so every pooled
// connection gets them; a plain PRAGMA statement only reaches the connection
// that happened to run it. Explicit settings in dsn win.
func withPragmas(dsn string) string {
	for _, p := range []struct{ name, value string }{
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	} {
		if strings.Contains(dsn, p.name) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=" + p.name + "(" + p.value + ")"
	}
	return dsn
}

// AutoMigrate creates or updates every table the exchange needs.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Category{},
		&domain.Puzzle{},
		&domain.Message{},
		&domain.Idempotency{},
	)
}
