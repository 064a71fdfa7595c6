package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/normalize"
	"github.com/tbourn/go-menu-tracker/internal/platform"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

// CatalogResolver finds or creates the platform domain and the restaurant
// of a snapshot and links the two. All methods run on the caller's
// transaction handle.
type CatalogResolver struct {
	Registry *platform.Registry
	Log      zerolog.Logger
}

// EnsureDomain returns the domain with the exact name, creating it when
// absent. A concurrent creator wins silently: the row is re-read.
func (c *CatalogResolver) EnsureDomain(ctx context.Context, tx *gorm.DB, name string) (*domain.Domain, error) {
	tr := otel.Tracer("services/CatalogResolver")
	ctx, span := tr.Start(ctx, "EnsureDomain", trace.WithAttributes(attribute.String("domain.name", name)))
	defer span.End()

	d, err := repo.FindDomainByName(ctx, tx, name)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	scraper, err := c.Registry.Infer(name)
	if err != nil {
		return nil, err
	}
	d = &domain.Domain{
		ID:          uuid.NewString(),
		Name:        name,
		DisplayName: normalize.DisplayName(name),
		BaseURL:     normalize.BaseURL(name),
		ScraperID:   scraper,
	}
	inserted, err := repo.InsertDomainIfAbsent(ctx, tx, d)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return repo.FindDomainByName(ctx, tx, name)
	}
	c.Log.Info().Str("domain", name).Str("scraper", scraper).Msg("domain created")
	return d, nil
}

// EnsureRestaurant returns the restaurant identified by (name, brand),
// creating it when absent. Brand defaults to the name.
func (c *CatalogResolver) EnsureRestaurant(ctx context.Context, tx *gorm.DB, in snapshot.Restaurant) (*domain.Restaurant, error) {
	name := normalize.Name(in.Name)
	brand := in.BrandOrName()

	tr := otel.Tracer("services/CatalogResolver")
	ctx, span := tr.Start(ctx, "EnsureRestaurant", trace.WithAttributes(
		attribute.String("restaurant.name", name),
		attribute.String("restaurant.brand", brand),
	))
	defer span.End()

	r, err := repo.FindRestaurant(ctx, tx, name, brand)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	r = &domain.Restaurant{
		ID:      uuid.NewString(),
		Name:    name,
		Brand:   brand,
		Slug:    normalize.Slug(name),
		Address: in.Address,
		Phone:   in.Phone,
	}
	if len(in.CuisineTypes) > 0 {
		b, err := json.Marshal(in.CuisineTypes)
		if err != nil {
			return nil, err
		}
		r.CuisineTypes = datatypes.JSON(b)
	}
	inserted, err := repo.InsertRestaurantIfAbsent(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return repo.FindRestaurant(ctx, tx, name, brand)
	}
	c.Log.Info().Str("restaurant", name).Str("brand", brand).Str("restaurant_id", r.ID).Msg("restaurant created")
	return r, nil
}

// LinkRestaurantDomain records that the restaurant was seen on the domain.
// URL, platform-specific name and last-seen time are last-write-wins.
func (c *CatalogResolver) LinkRestaurantDomain(ctx context.Context, tx *gorm.DB, restaurantID, domainID, url, name string, seenAt time.Time) error {
	return repo.UpsertRestaurantDomain(ctx, tx, restaurantID, domainID, url, name, seenAt)
}
