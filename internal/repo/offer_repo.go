// This file provides repository functions for the Offer model.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

// ListOffers returns a restaurant's offers by name; activeOnly restricts the
// result to active ones.
func ListOffers(ctx context.Context, db *gorm.DB, restaurantID string, activeOnly bool) ([]domain.Offer, error) {
	var out []domain.Offer
	q := db.WithContext(ctx).Where("restaurant_id = ?", restaurantID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("name asc").Find(&out).Error
	return out, err
}

// FindOffersByName returns the offers of a restaurant whose name is in names.
func FindOffersByName(ctx context.Context, db *gorm.DB, restaurantID string, names []string) ([]domain.Offer, error) {
	var out []domain.Offer
	if len(names) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("restaurant_id = ? AND name IN ?", restaurantID, names).
		Find(&out).Error
	return out, err
}

// FindOfferByName returns the offer with the exact name, or ErrNotFound.
func FindOfferByName(ctx context.Context, db *gorm.DB, restaurantID, name string) (*domain.Offer, error) {
	var o domain.Offer
	if err := db.WithContext(ctx).Where("restaurant_id = ? AND name = ?", restaurantID, name).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertOfferIfAbsent inserts o unless (restaurant_id, name) exists.
func InsertOfferIfAbsent(ctx context.Context, db *gorm.DB, o *domain.Offer) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "restaurant_id"}, {Name: "name"}}, DoNothing: true}).
		Create(o)
	return res.RowsAffected > 0, res.Error
}

// UpdateOffer applies fields to the offer with id; ErrNotFound if absent.
// Nil values in fields are written as NULL.
func UpdateOffer(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
