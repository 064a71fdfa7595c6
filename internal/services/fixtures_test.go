package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%s.db", uuid.NewString()))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "open sqlite")
	// One connection keeps PRAGMAs in effect for every statement.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	require.NoError(t, repo.AutoMigrate(db), "automigrate")
	return db
}

func newTestImporter(t *testing.T, db *gorm.DB) *Importer {
	t.Helper()
	im, err := NewImporter(db, ImporterOptions{DefaultCurrency: "EUR", Workers: 1, Log: zerolog.Nop()})
	require.NoError(t, err)
	im.Now = func() time.Time { return t0.Add(24 * time.Hour) }
	return im
}

func fptr(f float64) *float64 { return &f }

func menu(at time.Time, products ...snapshot.Product) *snapshot.Snapshot {
	ts := at
	return &snapshot.Snapshot{
		Metadata: &snapshot.Metadata{ScraperVersion: "2.1.0", ScrapingMethod: "api", ScrapedAt: &ts},
		Source:   &snapshot.Source{URL: "https://www.foody.com.cy/delivery/menu/pizza-place", Domain: "foody.com.cy"},
		Restaurant: &snapshot.Restaurant{
			Name:         "Pizza Place",
			Rating:       fptr(4.5),
			CuisineTypes: []string{"Pizza", "Italian"},
		},
		Categories: []snapshot.Category{{Name: "Pizzas", DisplayOrder: 1}, {Name: "Drinks", DisplayOrder: 2}},
		Products:   products,
	}
}

func item(ext, name, category string, price float64) snapshot.Product {
	p := snapshot.Product{Name: name, Category: category, Price: price, OriginalPrice: price}
	if ext != "" {
		p.ExternalID = &ext
	}
	return p
}

func onOffer(p snapshot.Product, pct float64, offer string) snapshot.Product {
	p.DiscountPercentage = pct
	p.OfferName = offer
	return p
}

// rawMenu renders a minimal snapshot document as the scrapers emit it.
func rawMenu(t *testing.T, restaurant, host string, at time.Time, products ...map[string]any) []byte {
	t.Helper()
	if products == nil {
		products = []map[string]any{}
	}
	b, err := json.Marshal(map[string]any{
		"metadata":   map[string]any{"scraper_version": "2.1.0", "scraped_at": at.Format(time.RFC3339)},
		"source":     map[string]any{"url": "https://" + host + "/menu/" + uuid.NewString(), "domain": host},
		"restaurant": map[string]any{"name": restaurant},
		"categories": []any{"Mains"},
		"products":   products,
	})
	require.NoError(t, err)
	return b
}

func mustImport(t *testing.T, im *Importer, s *snapshot.Snapshot) *ImportResult {
	t.Helper()
	res, err := im.ImportSnapshot(context.Background(), s)
	require.NoError(t, err, "import")
	return res
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error, "count %T", model)
	return n
}

func seedMenuRestaurant(t *testing.T, db *gorm.DB) (restaurantID, uncategorizedID string) {
	t.Helper()
	r := &domain.Restaurant{ID: "r1", Name: "Cafe", Brand: "Cafe", Slug: "cafe"}
	require.NoError(t, db.Create(r).Error)
	c := &domain.Category{ID: "c-unc", RestaurantID: r.ID, Name: domain.UncategorizedName, Source: domain.CategorySourceFallback}
	require.NoError(t, db.Create(c).Error)
	return r.ID, c.ID
}

func seedMenuProduct(t *testing.T, db *gorm.DB, id, name string, ext *string, created time.Time) {
	t.Helper()
	p := &domain.Product{ID: id, RestaurantID: "r1", CategoryID: "c-unc", ExternalID: ext, Name: name, CreatedAt: created, UpdatedAt: created}
	require.NoError(t, db.Create(p).Error, "seed product %s", id)
}
