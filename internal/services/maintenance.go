package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/repo"
)

// MergeReport summarizes a duplicate-product merge.
type MergeReport struct {
	Groups        int   `json:"groups"`
	Removed       int64 `json:"removed"`
	PricesMoved   int64 `json:"prices_moved"`
	PricesDropped int64 `json:"prices_dropped"`
}

// MaintenanceService holds operator-triggered repairs. Imports never call it.
type MaintenanceService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// MergeDuplicateProducts collapses every group of same-named products of a
// restaurant into the oldest one. Price rows move to the survivor unless it
// already has a row for the same scraped_at, in which case they are dropped.
// A survivor without an external id adopts the first one found in its group.
// The whole merge is one transaction.
func (s *MaintenanceService) MergeDuplicateProducts(ctx context.Context, restaurantID string) (MergeReport, error) {
	tr := otel.Tracer("services/MaintenanceService")
	ctx, span := tr.Start(ctx, "MergeDuplicateProducts", trace.WithAttributes(attribute.String("restaurant.id", restaurantID)))
	defer span.End()

	var rep MergeReport
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetRestaurant(ctx, tx, restaurantID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRestaurantNotFound
			}
			return err
		}
		names, err := repo.DuplicateProductNames(ctx, tx, restaurantID)
		if err != nil {
			return err
		}
		for _, name := range names {
			group, err := repo.FindProductsByName(ctx, tx, restaurantID, name)
			if err != nil {
				return err
			}
			if len(group) < 2 {
				continue
			}
			keep := group[0]
			var adopt *string
			ids := make([]string, 0, len(group)-1)
			for _, dup := range group[1:] {
				moved, err := repo.MovePrices(ctx, tx, dup.ID, keep.ID)
				if err != nil {
					return err
				}
				dropped, err := repo.DeletePricesOf(ctx, tx, dup.ID)
				if err != nil {
					return err
				}
				rep.PricesMoved += moved
				rep.PricesDropped += dropped
				if keep.ExternalID == nil && adopt == nil && dup.ExternalID != nil {
					adopt = dup.ExternalID
				}
				ids = append(ids, dup.ID)
			}
			removed, err := repo.DeleteProducts(ctx, tx, ids)
			if err != nil {
				return err
			}
			if adopt != nil {
				if err := repo.UpdateProduct(ctx, tx, keep.ID, map[string]any{"external_id": *adopt}); err != nil {
					return err
				}
			}
			rep.Groups++
			rep.Removed += removed
			s.Log.Info().
				Str("restaurant_id", restaurantID).
				Str("name", name).
				Str("kept", keep.ID).
				Strs("removed", ids).
				Msg("merged duplicate products")
		}
		return nil
	})
	if err != nil {
		return MergeReport{}, err
	}
	return rep, nil
}
