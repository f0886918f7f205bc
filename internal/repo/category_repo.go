// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Category model.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// UpsertCategories returns one row per distinct name, creating the missing
// ones. Names are expected to be canonicalized by the caller.
func UpsertCategories(ctx context.Context, db *gorm.DB, names []string) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}

		var c domain.Category
		err := db.WithContext(ctx).
			Where(domain.Category{Name: name}).
			Attrs(domain.Category{ID: uuid.NewString()}).
			FirstOrCreate(&c).Error
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ListCategories returns all categories ordered by name.
func ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	var out []domain.Category
	err := db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}
