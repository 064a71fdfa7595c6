package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

// PriceRecorder appends price observations. History is append-only: a row
// already present for (product, scraped_at) is left untouched.
type PriceRecorder struct {
	DefaultCurrency string
}

// Record inserts the observation of p at scrapedAt for productID and reports
// whether a new row was written. offerID links the row to the offer the
// product participates in, if any.
func (r *PriceRecorder) Record(ctx context.Context, tx *gorm.DB, productID string, p snapshot.Product, offerID *string, scrapedAt time.Time) (bool, error) {
	return repo.InsertPriceIfAbsent(ctx, tx, r.row(productID, p, offerID, scrapedAt))
}

func (r *PriceRecorder) row(productID string, p snapshot.Product, offerID *string, scrapedAt time.Time) *domain.ProductPrice {
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = r.DefaultCurrency
	}
	original := correctedOriginal(p.Price, p.OriginalPrice, p.DiscountPercentage)
	pp := &domain.ProductPrice{
		ID:                 uuid.NewString(),
		ProductID:          productID,
		Price:              p.Price,
		OriginalPrice:      original,
		Currency:           currency,
		DiscountPercentage: p.DiscountPercentage,
		DiscountAmount:     discountAmount(p.Price, original),
		Availability:       p.IsAvailable(),
		ScrapedAt:          scrapedAt.UTC(),
	}
	if offerID != nil {
		name := p.OfferLabel()
		pp.OfferID = offerID
		pp.OfferName = &name
	}
	return pp
}

var hundred = decimal.NewFromInt(100)

// correctedOriginal rebuilds the pre-discount price when a scraper reported
// the discounted price twice.
func correctedOriginal(price, original, pct float64) float64 {
	if pct <= 0 || pct >= 100 || price <= 0 || price != original {
		return original
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(pct).Div(hundred))
	v, _ := decimal.NewFromFloat(price).Div(factor).Round(2).Float64()
	return v
}

func discountAmount(price, original float64) *float64 {
	if original <= price {
		return nil
	}
	v, _ := decimal.NewFromFloat(original).Sub(decimal.NewFromFloat(price)).Round(2).Float64()
	return &v
}
