// This file provides repository functions for platforms (domains),
// restaurants, and the restaurant/platform link table.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

// FindDomainByName returns the platform with the exact host name, or ErrNotFound.
func FindDomainByName(ctx context.Context, db *gorm.DB, name string) (*domain.Domain, error) {
	var d domain.Domain
	if err := db.WithContext(ctx).Where("name = ?", name).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// InsertDomainIfAbsent inserts d unless a domain with the same name exists.
// It reports whether the row was inserted.
func InsertDomainIfAbsent(ctx context.Context, db *gorm.DB, d *domain.Domain) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(d)
	return res.RowsAffected > 0, res.Error
}

// FindRestaurant returns the restaurant identified by (name, brand), or ErrNotFound.
func FindRestaurant(ctx context.Context, db *gorm.DB, name, brand string) (*domain.Restaurant, error) {
	var r domain.Restaurant
	if err := db.WithContext(ctx).Where("name = ? AND brand = ?", name, brand).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertRestaurantIfAbsent inserts r unless (name, brand) already exists.
func InsertRestaurantIfAbsent(ctx context.Context, db *gorm.DB, r *domain.Restaurant) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}, {Name: "brand"}}, DoNothing: true}).
		Create(r)
	return res.RowsAffected > 0, res.Error
}

// GetRestaurant fetches a restaurant by id, or ErrNotFound.
func GetRestaurant(ctx context.Context, db *gorm.DB, id string) (*domain.Restaurant, error) {
	var r domain.Restaurant
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRestaurantsPage returns restaurants ordered by name.
func ListRestaurantsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Restaurant, error) {
	var out []domain.Restaurant
	err := db.WithContext(ctx).
		Order("name asc, brand asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountRestaurants returns the number of restaurants.
func CountRestaurants(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Restaurant{}).Count(&n).Error
	return n, err
}

// UpsertRestaurantDomain links a restaurant to a platform. On an existing
// link the URL, platform-specific name and last-seen time are overwritten.
func UpsertRestaurantDomain(ctx context.Context, db *gorm.DB, restaurantID, domainID, url, name string, seenAt time.Time) error {
	link := &domain.RestaurantDomain{
		RestaurantID:       restaurantID,
		DomainID:           domainID,
		DomainURL:          url,
		DomainSpecificName: name,
		LastSeenAt:         seenAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "restaurant_id"}, {Name: "domain_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"domain_url", "domain_specific_name", "last_seen_at"}),
		}).
		Create(link).Error
}

// ListRestaurantDomains returns the platform links of a restaurant.
func ListRestaurantDomains(ctx context.Context, db *gorm.DB, restaurantID string) ([]domain.RestaurantDomain, error) {
	var out []domain.RestaurantDomain
	err := db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("last_seen_at desc").
		Find(&out).Error
	return out, err
}
