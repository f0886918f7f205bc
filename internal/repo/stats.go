// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// latestUpdate returns the greatest updated_at in q, or nil for an empty set.
// MAX() is avoided because SQLite hands it back as TEXT.
func latestUpdate(q *gorm.DB) (*time.Time, error) {
	var row struct {
		UpdatedAt time.Time
	}
	res := q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row.UpdatedAt, nil
}

// ThreadStats returns the number of viewer-visible messages in a thread and
// the latest UpdatedAt among them. Read and delete flips bump UpdatedAt, so
// the pair changes whenever the viewer's rendering would.
func ThreadStats(ctx context.Context, db *gorm.DB, viewer, other, puzzleID string) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = threadScope(ctx, db, viewer, other, puzzleID).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	maxUpdatedAt, err = latestUpdate(threadScope(ctx, db, viewer, other, puzzleID))
	if err != nil {
		return 0, nil, err
	}
	return count, maxUpdatedAt, nil
}

// OwnedPuzzleStats returns the number of the owner's active puzzles and the
// latest UpdatedAt among them.
func OwnedPuzzleStats(ctx context.Context, db *gorm.DB, ownerID string) (count int64, maxUpdatedAt *time.Time, err error) {
	scope := func() *gorm.DB {
		return db.WithContext(ctx).
			Model(&domain.Puzzle{}).
			Where("user_id = ? AND is_deleted = ?", ownerID, false)
	}
	if err = scope().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	maxUpdatedAt, err = latestUpdate(scope())
	if err != nil {
		return 0, nil, err
	}
	return count, maxUpdatedAt, nil
}
