// This file provides repository functions for the append-only ProductPrice
// history.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

// InsertPriceIfAbsent appends pp unless a row for (product_id, scraped_at)
// already exists. It reports whether a row was inserted.
func InsertPriceIfAbsent(ctx context.Context, db *gorm.DB, pp *domain.ProductPrice) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "product_id"}, {Name: "scraped_at"}}, DoNothing: true}).
		Create(pp)
	return res.RowsAffected > 0, res.Error
}

// ListPriceHistory returns a product's price rows, newest first.
func ListPriceHistory(ctx context.Context, db *gorm.DB, productID string, limit int) ([]domain.ProductPrice, error) {
	var out []domain.ProductPrice
	q := db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("scraped_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MovePrices reassigns price rows from one product to another, skipping
// rows whose scraped_at already exists on the target. It returns the
// number of rows moved.
func MovePrices(ctx context.Context, db *gorm.DB, fromID, toID string) (int64, error) {
	res := db.WithContext(ctx).Exec(`
		UPDATE product_prices SET product_id = ?
		WHERE product_id = ?
		  AND NOT EXISTS (
		    SELECT 1 FROM product_prices AS keep
		    WHERE keep.product_id = ? AND keep.scraped_at = product_prices.scraped_at
		  )`, toID, fromID, toID)
	return res.RowsAffected, res.Error
}

// DeletePricesOf removes every price row of a product.
func DeletePricesOf(ctx context.Context, db *gorm.DB, productID string) (int64, error) {
	res := db.WithContext(ctx).Where("product_id = ?", productID).Delete(&domain.ProductPrice{})
	return res.RowsAffected, res.Error
}
