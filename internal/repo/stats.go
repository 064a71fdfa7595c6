// This file provides small aggregate queries over a restaurant's catalog,
// used by the read API and by import bookkeeping.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

// RestaurantCounts aggregates row counts for one restaurant.
type RestaurantCounts struct {
	Categories    int64      `json:"categories"`
	Products      int64      `json:"products"`
	Prices        int64      `json:"prices"`
	ActiveOffers  int64      `json:"active_offers"`
	Offers        int64      `json:"offers"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}

// RestaurantStats counts the categories, products, price rows and offers of
// a restaurant, and finds its latest price observation.
func RestaurantStats(ctx context.Context, db *gorm.DB, restaurantID string) (RestaurantCounts, error) {
	var c RestaurantCounts
	db = db.WithContext(ctx)

	if err := db.Model(&domain.Category{}).Where("restaurant_id = ?", restaurantID).Count(&c.Categories).Error; err != nil {
		return c, err
	}
	if err := db.Model(&domain.Product{}).Where("restaurant_id = ?", restaurantID).Count(&c.Products).Error; err != nil {
		return c, err
	}
	if err := db.Model(&domain.Offer{}).Where("restaurant_id = ?", restaurantID).Count(&c.Offers).Error; err != nil {
		return c, err
	}
	if err := db.Model(&domain.Offer{}).Where("restaurant_id = ? AND is_active = ?", restaurantID, true).Count(&c.ActiveOffers).Error; err != nil {
		return c, err
	}

	prices := func() *gorm.DB {
		return db.Model(&domain.ProductPrice{}).
			Where("product_id IN (?)", db.Model(&domain.Product{}).Select("id").Where("restaurant_id = ?", restaurantID))
	}
	if err := prices().Count(&c.Prices).Error; err != nil {
		return c, err
	}
	if c.Prices == 0 {
		return c, nil
	}

	// Ordered scan rather than MAX(): SQLite returns MAX over timestamps as TEXT.
	var row struct {
		ScrapedAt time.Time
	}
	if err := prices().Select("scraped_at").Order("scraped_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return c, err
	}
	c.LastScrapedAt = &row.ScrapedAt
	return c, nil
}
