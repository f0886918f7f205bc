package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/repo"
)

// fixture wires every service on a fresh file-backed database.
type fixture struct {
	db       *gorm.DB
	users    *UserService
	puzzles  *PuzzleService
	messages *MessageService
	nego     *NegotiationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, repo.AutoMigrate(db))

	msgs := &MessageService{DB: db, MaxContentRunes: 200}
	return &fixture{
		db:       db,
		users:    &UserService{DB: db},
		puzzles:  &PuzzleService{DB: db},
		messages: msgs,
		nego:     &NegotiationService{DB: db, Messages: msgs},
	}
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), NewUser{Username: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return u
}

func (f *fixture) puzzle(t *testing.T, owner *domain.User, title string) *domain.Puzzle {
	t.Helper()
	p, err := f.puzzles.CreatePuzzle(context.Background(), owner.ID, NewPuzzle{
		Title: title, Pieces: 1000, Manufacturer: "Ravensburger",
	})
	require.NoError(t, err)
	return p
}

// reload reads the puzzle row as stored.
func (f *fixture) reload(t *testing.T, id string) *domain.Puzzle {
	t.Helper()
	p, err := repo.GetPuzzle(context.Background(), f.db, id)
	require.NoError(t, err)
	return p
}

// thread drains MessageService.Thread into a slice.
func (f *fixture) thread(t *testing.T, viewer, other, puzzleID string) []domain.Message {
	t.Helper()
	var out []domain.Message
	for m, err := range f.messages.Thread(context.Background(), viewer, other, puzzleID) {
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func requireKind(t *testing.T, err error, want error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, want, "got %v (kind %q)", err, KindOf(err))
}
