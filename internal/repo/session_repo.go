// This file provides repository functions for ScrapingSession rows and the
// RestaurantSnapshot metrics written alongside them.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

// CreateSession inserts s.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.ScrapingSession) error {
	return db.WithContext(ctx).Create(s).Error
}

// UpdateSession applies fields to the session with id; ErrNotFound if absent.
func UpdateSession(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.ScrapingSession{}).
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

// GetSession fetches a session by id, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.ScrapingSession, error) {
	var s domain.ScrapingSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns a restaurant's sessions, most recent snapshot first.
func ListSessions(ctx context.Context, db *gorm.DB, restaurantID string, offset, limit int) ([]domain.ScrapingSession, error) {
	var out []domain.ScrapingSession
	err := db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("scraped_at desc, started_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// InsertRestaurantSnapshotIfAbsent appends rs unless a row for
// (restaurant_id, domain_id, scraped_at) exists.
func InsertRestaurantSnapshotIfAbsent(ctx context.Context, db *gorm.DB, rs *domain.RestaurantSnapshot) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "restaurant_id"}, {Name: "domain_id"}, {Name: "scraped_at"}},
			DoNothing: true,
		}).
		Create(rs)
	return res.RowsAffected > 0, res.Error
}
