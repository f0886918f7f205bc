// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run on the shared connection or inside a caller-owned transaction. They
// follow the "thin repository" approach: no business rules, only persistence
// and query composition.
//
// Error semantics:
//   - Missing rows surface as gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - Unique violations on username/email surface as ErrDuplicate.
//   - Any other DB error is propagated unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so services can match either.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique constraint rejected the insert.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation reports whether err came from a UNIQUE constraint.
// glebarez/sqlite often returns plain-text errors for these.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateUser inserts u, assigning a UUID when ID is empty.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches a user by ID.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername fetches a user by handle.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsersByIDs loads the given users in one query, keyed by ID. Unknown IDs
// are simply absent from the map.
func GetUsersByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}

// TouchInbox moves the user's inbox watermark and last-seen time to now.
// Returns ErrNotFound when the user does not exist.
func TouchInbox(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_read_time": now,
			"last_seen":              now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
