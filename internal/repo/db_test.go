package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// newRepoDB opens a file-backed database in a temp dir through OpenSQLite and
// migrates the full schema.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "repo.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// seedUsers inserts users with the given IDs; usernames/emails derive from them.
func seedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		u := &domain.User{ID: id, Username: "user_" + id, Email: id + "@example.com"}
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

// seedPuzzle inserts an Available puzzle owned by owner.
func seedPuzzle(t *testing.T, db *gorm.DB, id, owner string, pieces int) *domain.Puzzle {
	t.Helper()
	p := &domain.Puzzle{ID: id, UserID: owner, Title: "Puzzle " + id, Pieces: pieces, Manufacturer: "Ravensburger", IsAvailable: true}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed puzzle %s: %v", id, err)
	}
	return p
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_PragmasPoolAndSchema(t *testing.T) {
	db := newRepoDB(t)

	var (
		journalMode string
		fkOn        int
		busyMS      int
	)
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	sqlDB, _ := db.DB()
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	m := db.Migrator()
	for _, tbl := range []any{&domain.User{}, &domain.Category{}, &domain.Puzzle{}, &domain.Message{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// FK enforcement: a message cannot reference a missing puzzle.
	seedUsers(t, db, "a", "b")
	bad := &domain.Message{ID: "m1", PuzzleID: "missing", SenderID: "a", RecipientID: "b", Content: "x", CreatedAt: time.Now().UTC()}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected FK violation for unknown puzzle")
	}
}

func TestWithPragmas(t *testing.T) {
	cases := map[string]string{
		"app.db":                       "app.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"file:x?mode=memory":           "file:x?mode=memory&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"a.db?_pragma=foreign_keys(0)": "a.db?_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)",
	}
	for in, want := range cases {
		if got := withPragmas(in); got != want {
			t.Fatalf("withPragmas(%q) = %q; want %q", in, got, want)
		}
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
