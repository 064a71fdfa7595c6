package handlers

import (
	"context"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/services"
)

// SnapshotImporter runs snapshot imports. *services.Importer implements it.
type SnapshotImporter interface {
	Import(ctx context.Context, raw []byte) (*services.ImportResult, error)
	ImportMany(ctx context.Context, raws [][]byte) []services.BatchItem
}

// MenuReader serves the read side. *services.QueryService implements it.
type MenuReader interface {
	Session(ctx context.Context, id string) (*domain.ScrapingSession, error)
	Sessions(ctx context.Context, restaurantID string, page, pageSize int) ([]domain.ScrapingSession, error)
	Restaurants(ctx context.Context, page, pageSize int) ([]domain.Restaurant, int64, error)
	Restaurant(ctx context.Context, id string) (*services.RestaurantDetail, error)
	CurrentPrices(ctx context.Context, restaurantID string, f repo.CurrentPriceFilter) ([]repo.CurrentPrice, error)
	PriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPrice, error)
	Offers(ctx context.Context, restaurantID string, activeOnly bool) ([]domain.Offer, error)
}

// Handlers groups the API endpoints.
type Handlers struct {
	imp  SnapshotImporter
	read MenuReader
}

// New binds the handlers to their services.
func New(imp SnapshotImporter, read MenuReader) *Handlers {
	return &Handlers{imp: imp, read: read}
}
