package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

func TestRestaurantStats_NoTables(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := RestaurantStats(context.Background(), db, "r1"); err == nil {
		t.Fatalf("expected error due to missing tables")
	}
}

func TestRestaurantStats_EmptyRestaurant(t *testing.T) {
	db := newCatalogDB(t)
	st, err := RestaurantStats(context.Background(), db, "r1")
	if err != nil {
		t.Fatalf("RestaurantStats: %v", err)
	}
	if st.Categories != 1 || st.Products != 0 || st.Prices != 0 || st.LastScrapedAt != nil {
		t.Fatalf("unexpected counts: %+v", st)
	}
}

func TestRestaurantStats_CountsAndScopes(t *testing.T) {
	db := newCatalogDB(t)
	ctx := context.Background()
	t1 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	seedProduct(t, db, "p1", "Latte", strp("A1"), t1)
	for i, at := range []time.Time{t1, t1.Add(2 * time.Hour), t1.Add(time.Hour)} {
		pp := &domain.ProductPrice{ID: fmt.Sprintf("pp%d", i), ProductID: "p1", Price: 3, Currency: "EUR", ScrapedAt: at}
		if _, err := InsertPriceIfAbsent(ctx, db, pp); err != nil {
			t.Fatalf("seed price: %v", err)
		}
	}
	for _, o := range []domain.Offer{
		{ID: "o1", RestaurantID: "r1", Name: "Lunch", IsActive: true},
		{ID: "o2", RestaurantID: "r1", Name: "Brunch", IsActive: false},
	} {
		o := o
		if _, err := InsertOfferIfAbsent(ctx, db, &o); err != nil {
			t.Fatalf("seed offer: %v", err)
		}
	}

	// Another restaurant's rows must not leak into r1's counters.
	seedRestaurant(t, db, "r2")
	if err := db.Create(&domain.Category{ID: "c2", RestaurantID: "r2", Name: "Other"}).Error; err != nil {
		t.Fatalf("seed r2 category: %v", err)
	}
	if err := db.Create(&domain.Product{ID: "p2", RestaurantID: "r2", CategoryID: "c2", Name: "Tea"}).Error; err != nil {
		t.Fatalf("seed r2 product: %v", err)
	}

	st, err := RestaurantStats(ctx, db, "r1")
	if err != nil {
		t.Fatalf("RestaurantStats: %v", err)
	}
	if st.Products != 1 || st.Prices != 3 || st.Offers != 2 || st.ActiveOffers != 1 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.LastScrapedAt == nil || !st.LastScrapedAt.Equal(t1.Add(2*time.Hour)) {
		t.Fatalf("LastScrapedAt = %v", st.LastScrapedAt)
	}
}
