package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/repo"
)

const (
	defaultPageSize    = 20
	maxPageSize        = 200
	defaultHistorySize = 100
)

// RestaurantDetail is a restaurant with its platform links and counters.
type RestaurantDetail struct {
	domain.Restaurant
	Domains []domain.RestaurantDomain `json:"domains"`
	Stats   repo.RestaurantCounts     `json:"stats"`
}

// QueryService serves the read side: sessions, restaurants, current prices,
// price history and offers.
type QueryService struct {
	DB *gorm.DB
}

// Session returns the scraping session with id.
func (s *QueryService) Session(ctx context.Context, id string) (*domain.ScrapingSession, error) {
	sess, err := repo.GetSession(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Sessions returns a page of a restaurant's sessions, newest first.
func (s *QueryService) Sessions(ctx context.Context, restaurantID string, page, pageSize int) ([]domain.ScrapingSession, error) {
	if _, err := s.restaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	page, pageSize = clampPage(page, pageSize)
	return repo.ListSessions(ctx, s.DB, restaurantID, (page-1)*pageSize, pageSize)
}

// Restaurants returns a page of restaurants ordered by name, and the total.
func (s *QueryService) Restaurants(ctx context.Context, page, pageSize int) ([]domain.Restaurant, int64, error) {
	page, pageSize = clampPage(page, pageSize)

	total, err := repo.CountRestaurants(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Restaurant{}, 0, nil
	}
	items, err := repo.ListRestaurantsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Restaurant returns one restaurant with its links and counters.
func (s *QueryService) Restaurant(ctx context.Context, id string) (*RestaurantDetail, error) {
	r, err := s.restaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	links, err := repo.ListRestaurantDomains(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	stats, err := repo.RestaurantStats(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &RestaurantDetail{Restaurant: *r, Domains: links, Stats: stats}, nil
}

// CurrentPrices returns the latest observation of every product of a
// restaurant.
func (s *QueryService) CurrentPrices(ctx context.Context, restaurantID string, f repo.CurrentPriceFilter) ([]repo.CurrentPrice, error) {
	if _, err := s.restaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	out, err := repo.CurrentPrices(ctx, s.DB, restaurantID, f)
	if out == nil && err == nil {
		out = []repo.CurrentPrice{}
	}
	return out, err
}

// PriceHistory returns a product's price rows, newest first.
func (s *QueryService) PriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPrice, error) {
	if _, err := repo.GetProduct(ctx, s.DB, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistorySize
	}
	return repo.ListPriceHistory(ctx, s.DB, productID, limit)
}

// Offers returns a restaurant's offers; activeOnly hides ended ones.
func (s *QueryService) Offers(ctx context.Context, restaurantID string, activeOnly bool) ([]domain.Offer, error) {
	if _, err := s.restaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	return repo.ListOffers(ctx, s.DB, restaurantID, activeOnly)
}

func (s *QueryService) restaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	r, err := repo.GetRestaurant(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRestaurantNotFound
	}
	return r, err
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
