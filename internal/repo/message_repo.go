// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
//
// A thread is the set of messages between two users about one puzzle. Every
// thread query here is viewer-relative: rows the viewer deleted from their own
// side are excluded, the other party's deletions are not.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// CreateMessage inserts m with a fresh ID, UTC timestamp and cleared
// read/delete flags.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	m.IsRead = false
	m.IsDeletedBySender, m.IsDeletedByRecipient = false, false
	return db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID regardless of visibility.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountUnread is the single-aggregate unread count for userID.
func CountUnread(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("recipient_id = ? AND is_read = ? AND is_deleted_by_recipient = ?", userID, false, false).
		Count(&total).Error
	return total, err
}

// CountReceivedSince counts messages addressed to userID, still visible to
// them, created after since. A nil since counts all of them.
func CountReceivedSince(ctx context.Context, db *gorm.DB, userID string, since *time.Time) (int64, error) {
	var total int64
	q := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("recipient_id = ? AND is_deleted_by_recipient = ?", userID, false)
	if since != nil {
		q = q.Where("created_at > ?", since.UTC())
	}
	err := q.Count(&total).Error
	return total, err
}

// threadScope restricts to the viewer-visible thread between viewer and other
// about puzzleID.
func threadScope(ctx context.Context, db *gorm.DB, viewer, other, puzzleID string) *gorm.DB {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("puzzle_id = ?", puzzleID).
		Where(
			"((sender_id = ? AND recipient_id = ? AND is_deleted_by_sender = ?) OR (sender_id = ? AND recipient_id = ? AND is_deleted_by_recipient = ?))",
			viewer, other, false, other, viewer, false,
		)
}

// EachThreadMessage streams the thread in (created_at, id) ascending order,
// calling fn for every row until it returns false. Rows are scanned one at a
// time from the cursor.
func EachThreadMessage(ctx context.Context, db *gorm.DB, viewer, other, puzzleID string, fn func(domain.Message) bool) error {
	rows, err := threadScope(ctx, db, viewer, other, puzzleID).
		Order("created_at ASC, id ASC").
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Message
		if err := db.ScanRows(rows, &m); err != nil {
			return err
		}
		if !fn(m) {
			return nil
		}
	}
	return rows.Err()
}

// CountThread returns the number of viewer-visible messages in the thread.
func CountThread(ctx context.Context, db *gorm.DB, viewer, other, puzzleID string) (int64, error) {
	var total int64
	err := threadScope(ctx, db, viewer, other, puzzleID).Count(&total).Error
	return total, err
}

// ListThreadPage returns a page of the viewer-visible thread, oldest first.
func ListThreadPage(ctx context.Context, db *gorm.DB, viewer, other, puzzleID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := threadScope(ctx, db, viewer, other, puzzleID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkRead flips is_read on message id. It reports whether the row changed,
// so re-marking an already read message is a no-op.
func MarkRead(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true)
	return res.RowsAffected > 0, res.Error
}

// HideForSender sets is_deleted_by_sender on message id.
func HideForSender(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Update("is_deleted_by_sender", true).Error
}

// HideForRecipient sets is_deleted_by_recipient on message id.
func HideForRecipient(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Update("is_deleted_by_recipient", true).Error
}

// HideThread hides every message of the thread from viewer's side only.
// It returns how many rows were newly hidden.
func HideThread(ctx context.Context, db *gorm.DB, viewer, other, puzzleID string) (int64, error) {
	sent := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("puzzle_id = ? AND sender_id = ? AND recipient_id = ? AND is_deleted_by_sender = ?", puzzleID, viewer, other, false).
		Update("is_deleted_by_sender", true)
	if sent.Error != nil {
		return 0, sent.Error
	}
	recv := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("puzzle_id = ? AND sender_id = ? AND recipient_id = ? AND is_deleted_by_recipient = ?", puzzleID, other, viewer, false).
		Update("is_deleted_by_recipient", true)
	if recv.Error != nil {
		return 0, recv.Error
	}
	return sent.RowsAffected + recv.RowsAffected, nil
}

// ListVisibleMessages returns every message visible to userID, newest first.
// Content is not loaded.
func ListVisibleMessages(ctx context.Context, db *gorm.DB, userID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Select("id", "puzzle_id", "sender_id", "recipient_id", "is_read", "is_automated", "created_at").
		Where(
			"((sender_id = ? AND is_deleted_by_sender = ?) OR (recipient_id = ? AND is_deleted_by_recipient = ?))",
			userID, false, userID, false,
		).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
