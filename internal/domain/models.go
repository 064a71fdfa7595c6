// Package domain defines the persistence models for scraped menu data:
// delivery platforms, restaurants, categories, products, their append-only
// price history, promotional offers, and the bookkeeping rows written for
// every imported snapshot. These types are mapped with GORM.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Domain is a delivery platform host (e.g. "foody.com.cy") and the scraper
// that produces its snapshots.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Name: raw host name as it appears in snapshots (unique).
//   - DisplayName: human-readable platform name derived from Name.
//   - BaseURL: "https://" + Name.
//   - ScraperID: platform scraper identifier inferred at creation.
type Domain struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"         gorm:"type:varchar(255);not null;uniqueIndex:ux_domains_name"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255);not null"`
	BaseURL     string    `json:"base_url"     gorm:"type:varchar(512);not null"`
	ScraperID   string    `json:"scraper_id"   gorm:"type:varchar(64);not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Domain.
func (Domain) TableName() string { return "domains" }

// Restaurant is identified by (Name, Brand); Brand defaults to Name.
type Restaurant struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	Name         string         `json:"name"          gorm:"type:varchar(255);not null;uniqueIndex:ux_restaurants_name_brand,priority:1"`
	Brand        string         `json:"brand"         gorm:"type:varchar(255);not null;uniqueIndex:ux_restaurants_name_brand,priority:2"`
	Slug         string         `json:"slug"          gorm:"type:varchar(255);not null;index"`
	Address      string         `json:"address"       gorm:"type:varchar(512)"`
	Phone        string         `json:"phone"         gorm:"type:varchar(64)"`
	CuisineTypes datatypes.JSON `json:"cuisine_types"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Restaurant.
func (Restaurant) TableName() string { return "restaurants" }

// RestaurantDomain links a restaurant to a platform it was seen on. The
// URL, platform-specific name and LastSeenAt are last-write-wins.
type RestaurantDomain struct {
	RestaurantID       string    `json:"restaurant_id"        gorm:"type:char(36);primaryKey"`
	DomainID           string    `json:"domain_id"            gorm:"type:char(36);primaryKey"`
	DomainURL          string    `json:"domain_url"           gorm:"type:varchar(1024)"`
	DomainSpecificName string    `json:"domain_specific_name" gorm:"type:varchar(255)"`
	LastSeenAt         time.Time `json:"last_seen_at"`

	Restaurant Restaurant `json:"-" gorm:"foreignKey:RestaurantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Domain     Domain     `json:"-" gorm:"foreignKey:DomainID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RestaurantDomain.
func (RestaurantDomain) TableName() string { return "restaurant_domains" }

// Category sources.
const (
	CategorySourceScraper  = "scraper"
	CategorySourceFallback = "fallback"
)

// UncategorizedName is the fallback category every restaurant is guaranteed
// to have after an import.
const UncategorizedName = "Uncategorized"

// Category is unique per (RestaurantID, Name).
type Category struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	RestaurantID string    `json:"restaurant_id" gorm:"type:char(36);not null;uniqueIndex:ux_categories_restaurant_name,priority:1"`
	Name         string    `json:"name"          gorm:"type:varchar(255);not null;uniqueIndex:ux_categories_restaurant_name,priority:2"`
	Description  string    `json:"description"   gorm:"type:text"`
	DisplayOrder int       `json:"display_order" gorm:"not null;default:0"`
	Source       string    `json:"source"        gorm:"type:varchar(32);not null;default:'scraper'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Restaurant Restaurant `json:"-" gorm:"foreignKey:RestaurantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Product is identified by ExternalID within a restaurant when one is
// known; Name is only a secondary (non-unique) lookup key.
type Product struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	RestaurantID string         `json:"restaurant_id" gorm:"type:char(36);not null;uniqueIndex:ux_products_restaurant_external,priority:1;index:idx_products_restaurant_name,priority:1"`
	CategoryID   string         `json:"category_id"   gorm:"type:char(36);not null;index"`
	ExternalID   *string        `json:"external_id,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_products_restaurant_external,priority:2"`
	Name         string         `json:"name"          gorm:"type:varchar(512);not null;index:idx_products_restaurant_name,priority:2"`
	Description  string         `json:"description"   gorm:"type:text"`
	ImageURL     string         `json:"image_url"     gorm:"type:varchar(1024)"`
	Options      datatypes.JSON `json:"options,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Restaurant Restaurant `json:"-" gorm:"foreignKey:RestaurantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Category   Category   `json:"-" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// ProductPrice is one observation of a product's price at a snapshot time.
// Rows are append-only and unique per (ProductID, ScrapedAt).
type ProductPrice struct {
	ID                 string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	ProductID          string    `json:"product_id"          gorm:"type:char(36);not null;uniqueIndex:ux_product_prices_product_scraped,priority:1"`
	Price              float64   `json:"price"               gorm:"not null;default:0"`
	OriginalPrice      float64   `json:"original_price"      gorm:"not null;default:0"`
	Currency           string    `json:"currency"            gorm:"type:varchar(8);not null"`
	DiscountPercentage float64   `json:"discount_percentage" gorm:"not null;default:0"`
	DiscountAmount     *float64  `json:"discount_amount,omitempty"`
	OfferID            *string   `json:"offer_id,omitempty"   gorm:"type:char(36);index"`
	OfferName          *string   `json:"offer_name,omitempty" gorm:"type:varchar(255)"`
	Availability       bool      `json:"availability"        gorm:"not null"`
	ScrapedAt          time.Time `json:"scraped_at"          gorm:"not null;uniqueIndex:ux_product_prices_product_scraped,priority:2"`

	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ProductPrice.
func (ProductPrice) TableName() string { return "product_prices" }

// Offer types.
const (
	OfferTypePercentage = "percentage"
	OfferTypeOther      = "other"
)

// Offer is a named promotion of a restaurant. At most one row exists per
// (RestaurantID, Name); it is toggled active/inactive across snapshots.
// EndAt is set exactly when IsActive is false.
type Offer struct {
	ID                 string     `json:"id"                  gorm:"type:char(36);primaryKey"`
	RestaurantID       string     `json:"restaurant_id"       gorm:"type:char(36);not null;uniqueIndex:ux_offers_restaurant_name,priority:1;index:idx_offers_restaurant_active,priority:1"`
	Name               string     `json:"name"                gorm:"type:varchar(255);not null;uniqueIndex:ux_offers_restaurant_name,priority:2"`
	OfferType          string     `json:"offer_type"          gorm:"type:varchar(32);not null;default:'other'"`
	DiscountPercentage *float64   `json:"discount_percentage,omitempty"`
	IsActive           bool       `json:"is_active"           gorm:"not null;index:idx_offers_restaurant_active,priority:2"`
	StartAt            time.Time  `json:"start_at"`
	EndAt              *time.Time `json:"end_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Restaurant Restaurant `json:"-" gorm:"foreignKey:RestaurantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Offer.
func (Offer) TableName() string { return "offers" }

// Session statuses.
const (
	SessionStarted   = "started"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// ScrapingSession is the audit row written for every import attempt that
// passed validation. It survives a rolled-back import as a failed session.
type ScrapingSession struct {
	ID                    string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	RestaurantID          *string        `json:"restaurant_id,omitempty" gorm:"type:char(36);index"`
	DomainID              *string        `json:"domain_id,omitempty"     gorm:"type:char(36)"`
	ScraperID             string         `json:"scraper_id"              gorm:"type:varchar(64)"`
	ScraperVersion        string         `json:"scraper_version"         gorm:"type:varchar(64)"`
	ScrapingMethod        string         `json:"scraping_method"         gorm:"type:varchar(64)"`
	URL                   string         `json:"url"                     gorm:"type:varchar(1024)"`
	ScrapedAt             time.Time      `json:"scraped_at"              gorm:"index"`
	StartedAt             time.Time      `json:"started_at"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds       float64        `json:"duration_seconds"`
	ScrapeDurationSeconds *float64       `json:"scrape_duration_seconds,omitempty"`
	Status                string         `json:"status"                  gorm:"type:varchar(16);not null;index;check:status IN ('started','completed','failed')"`
	Phase                 string         `json:"phase"                   gorm:"type:varchar(32)"`
	ProductCount          int            `json:"product_count"`
	CategoryCount         int            `json:"category_count"`
	ErrorCount            int            `json:"error_count"`
	Errors                datatypes.JSON `json:"errors,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// TableName returns the database table name for ScrapingSession.
func (ScrapingSession) TableName() string { return "scraping_sessions" }

// RestaurantSnapshot captures restaurant-level metrics of one snapshot,
// unique per (RestaurantID, DomainID, ScrapedAt).
type RestaurantSnapshot struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	RestaurantID    string    `json:"restaurant_id"    gorm:"type:char(36);not null;uniqueIndex:ux_restaurant_snapshots_key,priority:1"`
	DomainID        string    `json:"domain_id"        gorm:"type:char(36);not null;uniqueIndex:ux_restaurant_snapshots_key,priority:2"`
	Rating          *float64  `json:"rating,omitempty"`
	DeliveryFee     *float64  `json:"delivery_fee,omitempty"`
	MinimumOrder    *float64  `json:"minimum_order,omitempty"`
	DeliveryTime    string    `json:"delivery_time"    gorm:"type:varchar(64)"`
	TotalProducts   int       `json:"total_products"`
	TotalCategories int       `json:"total_categories"`
	ScrapedAt       time.Time `json:"scraped_at"       gorm:"not null;uniqueIndex:ux_restaurant_snapshots_key,priority:3"`

	Restaurant Restaurant `json:"-" gorm:"foreignKey:RestaurantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RestaurantSnapshot.
func (RestaurantSnapshot) TableName() string { return "restaurant_snapshots" }

// ErrorEntry is one element of ScrapingSession.Errors.
type ErrorEntry struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// All returns every model in dependency order, for migrations.
func All() []any {
	return []any{
		&Domain{},
		&Restaurant{},
		&RestaurantDomain{},
		&Category{},
		&Product{},
		&Offer{},
		&ProductPrice{},
		&ScrapingSession{},
		&RestaurantSnapshot{},
	}
}
