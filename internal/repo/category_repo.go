// This file provides repository functions for the Category model.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

// ListCategories returns all categories of a restaurant ordered by display order.
func ListCategories(ctx context.Context, db *gorm.DB, restaurantID string) ([]domain.Category, error) {
	var out []domain.Category
	err := db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("display_order asc, name asc").
		Find(&out).Error
	return out, err
}

// FindCategoriesByName returns the categories of a restaurant whose name is
// one of names, in a single query.
func FindCategoriesByName(ctx context.Context, db *gorm.DB, restaurantID string, names []string) ([]domain.Category, error) {
	var out []domain.Category
	if len(names) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("restaurant_id = ? AND name IN ?", restaurantID, names).
		Find(&out).Error
	return out, err
}

// InsertCategoriesIfAbsent batch-inserts cats, skipping any (restaurant_id,
// name) that already exists, and returns the number of rows inserted.
func InsertCategoriesIfAbsent(ctx context.Context, db *gorm.DB, cats []domain.Category) (int64, error) {
	if len(cats) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "restaurant_id"}, {Name: "name"}}, DoNothing: true}).
		Create(&cats)
	return res.RowsAffected, res.Error
}
