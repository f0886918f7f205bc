// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Puzzle model,
// including the compare-and-set update that linearizes lifecycle transitions.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// ErrStale is returned by SwapPuzzleFlags when the row no longer matches the
// flags (or owner) the caller read. Another transition won the race.
var ErrStale = errors.New("stale puzzle state")

// CreatePuzzle inserts p together with its category associations. The ID is
// generated when empty and CreatedAt is set to UTC now.
func CreatePuzzle(ctx context.Context, db *gorm.DB, p *domain.Puzzle) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return err
	}
	p.RefreshStatus()
	return nil
}

// GetPuzzle fetches the bare puzzle row.
func GetPuzzle(ctx context.Context, db *gorm.DB, id string) (*domain.Puzzle, error) {
	var p domain.Puzzle
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPuzzleDetail fetches a puzzle with its owner and categories preloaded.
func GetPuzzleDetail(ctx context.Context, db *gorm.DB, id string) (*domain.Puzzle, error) {
	var p domain.Puzzle
	err := db.WithContext(ctx).
		Preload("Owner").
		Preload("Categories").
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListOwnedPuzzles returns the owner's non-deleted puzzles, newest first.
func ListOwnedPuzzles(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Puzzle, error) {
	var out []domain.Puzzle
	err := db.WithContext(ctx).
		Preload("Categories").
		Where("user_id = ? AND is_deleted = ?", ownerID, false).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// ListingFilter narrows the browsable listing. Zero values disable a clause.
type ListingFilter struct {
	ExcludeOwner string
	Category     string
	MinPieces    int
	MaxPieces    int
}

func listingQuery(ctx context.Context, db *gorm.DB, f ListingFilter) *gorm.DB {
	q := db.WithContext(ctx).
		Model(&domain.Puzzle{}).
		Where("puzzles.is_available = ? AND puzzles.is_deleted = ?", true, false)
	if f.ExcludeOwner != "" {
		q = q.Where("puzzles.user_id <> ?", f.ExcludeOwner)
	}
	if f.Category != "" {
		q = q.Where(`EXISTS (
			SELECT 1 FROM puzzle_categories pc
			JOIN categories c ON c.id = pc.category_id
			WHERE pc.puzzle_id = puzzles.id AND c.name = ?)`, f.Category)
	}
	if f.MinPieces > 0 {
		q = q.Where("puzzles.pieces >= ?", f.MinPieces)
	}
	if f.MaxPieces > 0 {
		q = q.Where("puzzles.pieces <= ?", f.MaxPieces)
	}
	return q
}

// CountListings returns the number of puzzles matching f.
func CountListings(ctx context.Context, db *gorm.DB, f ListingFilter) (int64, error) {
	var total int64
	err := listingQuery(ctx, db, f).Count(&total).Error
	return total, err
}

// ListListingsPage returns a page of puzzles matching f, newest first.
// A non-positive limit returns every match (used when results are re-ranked
// in memory).
func ListListingsPage(ctx context.Context, db *gorm.DB, f ListingFilter, offset, limit int) ([]domain.Puzzle, error) {
	var out []domain.Puzzle
	q := listingQuery(ctx, db, f).
		Preload("Categories").
		Order("puzzles.created_at DESC, puzzles.id ASC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// SwapPuzzleFlags atomically moves puzzle id from the `from` flags to the `to`
// flags, provided the row still has owner `owner`. extra carries additional
// columns (user_id, requested_by) written in the same statement.
//
// Returns ErrStale when nothing matched.
func SwapPuzzleFlags(ctx context.Context, db *gorm.DB, id, owner string, from, to domain.Flags, extra map[string]any) error {
	set := map[string]any{
		"is_available": to.IsAvailable,
		"is_requested": to.IsRequested,
		"in_progress":  to.InProgress,
		"is_deleted":   to.IsDeleted,
	}
	for k, v := range extra {
		set[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Puzzle{}).
		Where("id = ? AND user_id = ?", id, owner).
		Where("is_available = ? AND is_requested = ? AND in_progress = ? AND is_deleted = ?",
			from.IsAvailable, from.IsRequested, from.InProgress, from.IsDeleted).
		Updates(set)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}
