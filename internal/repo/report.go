// This file builds the read-side "current price" view: the most recent
// price observation of every product of a restaurant.
package repo

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
)

// CurrentPrice is one row of the current price view.
type CurrentPrice struct {
	ProductID          string    `json:"product_id"`
	ExternalID         *string   `json:"external_id,omitempty"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	Price              float64   `json:"price"`
	OriginalPrice      float64   `json:"original_price"`
	Currency           string    `json:"currency"`
	DiscountPercentage float64   `json:"discount_percentage"`
	OfferName          *string   `json:"offer_name,omitempty"`
	Availability       bool      `json:"availability"`
	ScrapedAt          time.Time `json:"scraped_at"`
}

// CurrentPriceFilter narrows the current price view.
type CurrentPriceFilter struct {
	Category       string
	AvailableOnly  bool
	DiscountedOnly bool
}

// currentPricesQuery builds the SQL for CurrentPrices. Placeholders are
// "?"; GORM rebinds them for the active dialect.
func currentPricesQuery(restaurantID string, f CurrentPriceFilter) (string, []any, error) {
	q := sq.Select(
		"p.id AS product_id",
		"p.external_id",
		"p.name",
		"c.name AS category",
		"pp.price",
		"pp.original_price",
		"pp.currency",
		"pp.discount_percentage",
		"pp.offer_name",
		"pp.availability",
		"pp.scraped_at",
	).
		From("products p").
		Join("categories c ON c.id = p.category_id").
		Join("product_prices pp ON pp.product_id = p.id").
		Where(sq.Eq{"p.restaurant_id": restaurantID}).
		Where("pp.scraped_at = (SELECT MAX(latest.scraped_at) FROM product_prices latest WHERE latest.product_id = p.id)").
		OrderBy("c.display_order", "c.name", "p.name")

	if f.Category != "" {
		q = q.Where(sq.Eq{"c.name": f.Category})
	}
	if f.AvailableOnly {
		q = q.Where(sq.Eq{"pp.availability": true})
	}
	if f.DiscountedOnly {
		q = q.Where(sq.Gt{"pp.discount_percentage": 0})
	}
	return q.ToSql()
}

// CurrentPrices returns the latest price row of each product of a restaurant.
func CurrentPrices(ctx context.Context, db *gorm.DB, restaurantID string, f CurrentPriceFilter) ([]CurrentPrice, error) {
	query, args, err := currentPricesQuery(restaurantID, f)
	if err != nil {
		return nil, err
	}
	var out []CurrentPrice
	err = db.WithContext(ctx).Raw(query, args...).Scan(&out).Error
	return out, err
}
