// Package snapshot defines the structured menu snapshot produced by the
// scraping layer, and validates and decodes it before anything is written.
package snapshot

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-menu-tracker/internal/normalize"
)

// Snapshot is one restaurant's menu on one platform at one point in time.
// Nil sections are "missing" as far as Validate is concerned.
type Snapshot struct {
	Metadata   *Metadata    `json:"metadata"`
	Source     *Source      `json:"source"`
	Restaurant *Restaurant  `json:"restaurant"`
	Categories []Category   `json:"categories"`
	Products   []Product    `json:"products"`
	Errors     []ErrorEntry `json:"errors,omitempty"`
}

// Metadata describes the scrape run that produced the snapshot.
type Metadata struct {
	ScraperVersion            string     `json:"scraper_version,omitempty"`
	Domain                    string     `json:"domain,omitempty"`
	ScrapingMethod            string     `json:"scraping_method,omitempty"`
	ScrapedAt                 *time.Time `json:"scraped_at,omitempty"`
	ProcessedAt               *time.Time `json:"processed_at,omitempty"`
	ProcessingDurationSeconds *float64   `json:"processing_duration_seconds,omitempty"`
	ErrorCount                int        `json:"error_count,omitempty"`
	ProductCount              int        `json:"product_count,omitempty"`
	CategoryCount             int        `json:"category_count,omitempty"`
}

// Source is where the snapshot was scraped from.
type Source struct {
	URL       string     `json:"url"`
	Domain    string     `json:"domain,omitempty"`
	ScrapedAt *time.Time `json:"scraped_at,omitempty"`
}

// Restaurant carries the restaurant descriptor and its platform metrics.
type Restaurant struct {
	Name         string   `json:"name"`
	Brand        string   `json:"brand,omitempty"`
	Address      string   `json:"address,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	DeliveryFee  *float64 `json:"delivery_fee,omitempty"`
	MinimumOrder *float64 `json:"minimum_order,omitempty"`
	DeliveryTime string   `json:"delivery_time,omitempty"`
	CuisineTypes []string `json:"cuisine_types,omitempty"`
}

// Category is a menu section descriptor.
type Category struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"display_order,omitempty"`
	Source       string `json:"source,omitempty"`
}

// Product is one scraped product record. Numeric fields are zero when the
// scraper did not provide them; Availability is nil when unknown.
type Product struct {
	Index              int             `json:"-" validate:"-"`
	ExternalID         *string         `json:"id,omitempty" validate:"-"`
	Name               string          `json:"name" validate:"required"`
	Description        string          `json:"description,omitempty" validate:"-"`
	Category           string          `json:"category,omitempty" validate:"-"`
	Price              float64         `json:"price" validate:"gte=0"`
	OriginalPrice      float64         `json:"original_price" validate:"gte=0"`
	Currency           string          `json:"currency,omitempty" validate:"omitempty,max=8"`
	DiscountPercentage float64         `json:"discount_percentage" validate:"gte=0,lte=100"`
	OfferName          string          `json:"offer_name,omitempty" validate:"-"`
	ImageURL           string          `json:"image_url,omitempty" validate:"-"`
	Availability       *bool           `json:"availability,omitempty" validate:"-"`
	Options            json.RawMessage `json:"options,omitempty" validate:"-"`

	// DecodeErrors lists fields that were present but unusable.
	DecodeErrors []string `json:"-" validate:"-"`
}

// ErrorEntry is an extraction problem reported by the scraper.
type ErrorEntry struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Timestamp returns the snapshot time in UTC: metadata.scraped_at, then
// source.scraped_at. ok is false when neither is set.
func (s *Snapshot) Timestamp() (t time.Time, ok bool) {
	switch {
	case s.Metadata != nil && s.Metadata.ScrapedAt != nil:
		return s.Metadata.ScrapedAt.UTC(), true
	case s.Source != nil && s.Source.ScrapedAt != nil:
		return s.Source.ScrapedAt.UTC(), true
	}
	return time.Time{}, false
}

// DomainName returns the platform host: source.domain, then
// metadata.domain, then the host of source.url.
func (s *Snapshot) DomainName() string {
	if s.Source != nil {
		if d := strings.TrimSpace(s.Source.Domain); d != "" {
			return strings.ToLower(d)
		}
	}
	if s.Metadata != nil {
		if d := strings.TrimSpace(s.Metadata.Domain); d != "" {
			return strings.ToLower(d)
		}
	}
	if s.Source != nil {
		return normalize.HostOf(s.Source.URL)
	}
	return ""
}

// BrandOrName returns the restaurant brand, defaulting to its name.
func (r *Restaurant) BrandOrName() string {
	if b := normalize.Name(r.Brand); b != "" {
		return b
	}
	return normalize.Name(r.Name)
}

// OfferLabel is the offer a product participates in: the explicit offer
// name, or "<n>% Discount" for an unnamed positive discount, or "".
func (p *Product) OfferLabel() string {
	if n := normalize.Name(p.OfferName); n != "" {
		return n
	}
	if p.DiscountPercentage > 0 {
		return AutoOfferName(p.DiscountPercentage)
	}
	return ""
}

// IsAvailable reports availability, defaulting to true.
func (p *Product) IsAvailable() bool {
	return p.Availability == nil || *p.Availability
}

// AutoOfferName names an unnamed percentage discount, truncating the
// percentage toward zero: 15.7 -> "15% Discount".
func AutoOfferName(pct float64) string {
	return strconv.Itoa(int(pct)) + "% Discount"
}
