package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

func seedProduct(t *testing.T, db *gorm.DB, id, name string, ext *string, created time.Time) {
	t.Helper()
	p := &domain.Product{ID: id, RestaurantID: "r1", CategoryID: "c1", ExternalID: ext, Name: name, CreatedAt: created, UpdatedAt: created}
	if err := CreateProduct(context.Background(), db, p); err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func newCatalogDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newRepoDB(t)
	seedRestaurant(t, db, "r1")
	if err := db.Create(&domain.Category{ID: "c1", RestaurantID: "r1", Name: domain.UncategorizedName, Source: domain.CategorySourceFallback}).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return db
}

func strp(s string) *string { return &s }

func TestProductLookups(t *testing.T) {
	db := newCatalogDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seedProduct(t, db, "p-new", "Latte", nil, base.Add(time.Hour))
	seedProduct(t, db, "p-old", "Latte", strp("A1"), base)
	seedProduct(t, db, "p-other", "Mocha", strp("B1"), base)

	got, err := FindProductByExternalID(ctx, db, "r1", "A1")
	if err != nil || got.ID != "p-old" {
		t.Fatalf("FindProductByExternalID: %+v %v", got, err)
	}
	if _, err := FindProductByExternalID(ctx, db, "r1", "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	byName, err := FindProductsByName(ctx, db, "r1", "Latte")
	if err != nil || len(byName) != 2 || byName[0].ID != "p-old" {
		t.Fatalf("FindProductsByName should return oldest first: %+v %v", byName, err)
	}

	dups, err := DuplicateProductNames(ctx, db, "r1")
	if err != nil || len(dups) != 1 || dups[0] != "Latte" {
		t.Fatalf("DuplicateProductNames: %v %v", dups, err)
	}

	if err := UpdateProduct(ctx, db, "p-other", map[string]any{"name": "Iced Mocha"}); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	p, _ := GetProduct(ctx, db, "p-other")
	if p.Name != "Iced Mocha" {
		t.Fatalf("rename not applied: %+v", p)
	}
	if err := UpdateProduct(ctx, db, "missing", map[string]any{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// External ids are unique per restaurant.
	err = CreateProduct(ctx, db, &domain.Product{ID: "p-dup", RestaurantID: "r1", CategoryID: "c1", ExternalID: strp("A1"), Name: "Other"})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestPrices_InsertIfAbsent_Move_History(t *testing.T) {
	db := newCatalogDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedProduct(t, db, "keep", "Latte", nil, base)
	seedProduct(t, db, "dup", "Latte", nil, base.Add(time.Minute))

	insert := func(id, product string, at time.Time, price float64) bool {
		t.Helper()
		ok, err := InsertPriceIfAbsent(ctx, db, &domain.ProductPrice{ID: id, ProductID: product, Price: price, Currency: "EUR", Availability: true, ScrapedAt: at})
		if err != nil {
			t.Fatalf("insert price %s: %v", id, err)
		}
		return ok
	}

	if !insert("k1", "keep", base, 3) {
		t.Fatalf("first price should insert")
	}
	if insert("k1b", "keep", base, 4) {
		t.Fatalf("same (product, scraped_at) must be skipped")
	}
	insert("d1", "dup", base, 3.1)                   // conflicts with keep@base
	insert("d2", "dup", base.Add(24*time.Hour), 3.2) // moves

	moved, err := MovePrices(ctx, db, "dup", "keep")
	if err != nil || moved != 1 {
		t.Fatalf("MovePrices moved=%d err=%v", moved, err)
	}
	if n, err := DeletePricesOf(ctx, db, "dup"); err != nil || n != 1 {
		t.Fatalf("DeletePricesOf n=%d err=%v", n, err)
	}

	hist, err := ListPriceHistory(ctx, db, "keep", 0)
	if err != nil || len(hist) != 2 {
		t.Fatalf("history len=%d err=%v", len(hist), err)
	}
	if hist[0].Price != 3.2 || hist[1].Price != 3 {
		t.Fatalf("history should be newest first with original row kept: %+v", hist)
	}

	if n, err := DeleteProducts(ctx, db, []string{"dup"}); err != nil || n != 1 {
		t.Fatalf("DeleteProducts n=%d err=%v", n, err)
	}
}

func TestOffersAndSessions(t *testing.T) {
	db := newCatalogDB(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	o := &domain.Offer{ID: "o1", RestaurantID: "r1", Name: "Happy Hour", OfferType: domain.OfferTypeOther, IsActive: true, StartAt: now}
	if ok, err := InsertOfferIfAbsent(ctx, db, o); err != nil || !ok {
		t.Fatalf("insert offer: %v %v", ok, err)
	}
	if ok, err := InsertOfferIfAbsent(ctx, db, &domain.Offer{ID: "o2", RestaurantID: "r1", Name: "Happy Hour", IsActive: true, StartAt: now}); err != nil || ok {
		t.Fatalf("duplicate offer must be skipped: %v %v", ok, err)
	}
	end := now.Add(time.Hour)
	if err := UpdateOffer(ctx, db, "o1", map[string]any{"is_active": false, "end_at": end}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, _ := ListOffers(ctx, db, "r1", true)
	if len(active) != 0 {
		t.Fatalf("expected no active offers, got %d", len(active))
	}
	if err := UpdateOffer(ctx, db, "o1", map[string]any{"is_active": true, "end_at": nil, "start_at": end}); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	got, err := FindOfferByName(ctx, db, "r1", "Happy Hour")
	if err != nil || !got.IsActive || got.EndAt != nil || !got.StartAt.Equal(end) {
		t.Fatalf("reactivated offer wrong: %+v %v", got, err)
	}
	byName, _ := FindOffersByName(ctx, db, "r1", []string{"Happy Hour", "Other"})
	if len(byName) != 1 {
		t.Fatalf("FindOffersByName len=%d", len(byName))
	}

	s := &domain.ScrapingSession{ID: "s1", Status: domain.SessionStarted, ScrapedAt: now, StartedAt: now}
	if err := CreateSession(ctx, db, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	rid := "r1"
	if err := UpdateSession(ctx, db, "s1", map[string]any{"status": domain.SessionCompleted, "restaurant_id": rid, "product_count": 3}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	gs, err := GetSession(ctx, db, "s1")
	if err != nil || gs.Status != domain.SessionCompleted || gs.ProductCount != 3 {
		t.Fatalf("GetSession: %+v %v", gs, err)
	}
	list, err := ListSessions(ctx, db, "r1", 0, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSessions: %d %v", len(list), err)
	}
	if err := UpdateSession(ctx, db, "nope", map[string]any{"status": domain.SessionFailed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := db.Create(&domain.Domain{ID: "d1", Name: "wolt.com", DisplayName: "Wolt", BaseURL: "https://wolt.com", ScraperID: "wolt"}).Error; err != nil {
		t.Fatalf("seed domain: %v", err)
	}
	rs := &domain.RestaurantSnapshot{ID: "rs1", RestaurantID: "r1", DomainID: "d1", ScrapedAt: now, TotalProducts: 3}
	if ok, err := InsertRestaurantSnapshotIfAbsent(ctx, db, rs); err != nil || !ok {
		t.Fatalf("insert snapshot: %v %v", ok, err)
	}
	if ok, err := InsertRestaurantSnapshotIfAbsent(ctx, db, &domain.RestaurantSnapshot{ID: "rs2", RestaurantID: "r1", DomainID: "d1", ScrapedAt: now}); err != nil || ok {
		t.Fatalf("duplicate snapshot must be skipped: %v %v", ok, err)
	}
}
