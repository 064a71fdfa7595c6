// This file provides repository functions for the Product model. Products
// are looked up by external id first and by name second; name lookups may
// legitimately return several rows for legacy data.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

// FindProductByExternalID returns the product with the given external id
// within a restaurant, or ErrNotFound.
func FindProductByExternalID(ctx context.Context, db *gorm.DB, restaurantID, externalID string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Where("restaurant_id = ? AND external_id = ?", restaurantID, externalID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProductsByName returns every product of a restaurant with the exact
// name, oldest first (ties broken by id).
func FindProductsByName(ctx context.Context, db *gorm.DB, restaurantID, name string) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Where("restaurant_id = ? AND name = ?", restaurantID, name).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// CreateProduct inserts p.
func CreateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).Create(p).Error
}

// UpdateProduct applies fields to the product with id. It returns
// ErrNotFound when no row matched.
func UpdateProduct(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Product{}).
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

// GetProduct fetches a product by id, or ErrNotFound.
func GetProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DuplicateProductNames returns the names that more than one product of the
// restaurant shares.
func DuplicateProductNames(ctx context.Context, db *gorm.DB, restaurantID string) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("restaurant_id = ?", restaurantID).
		Group("name").
		Having("COUNT(*) > 1").
		Order("name asc").
		Pluck("name", &names).Error
	return names, err
}

// DeleteProducts removes the products with the given ids (their price rows
// cascade).
func DeleteProducts(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Product{})
	return res.RowsAffected, res.Error
}
