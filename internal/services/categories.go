package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/normalize"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

const (
	uncategorizedDescription = "Products without specific category"
	uncategorizedOrder       = 999
)

// CategoryResolver maps a snapshot's category descriptors to category ids
// with one batch read and at most one batch insert.
type CategoryResolver struct {
	Log zerolog.Logger
}

// Resolve returns name -> id for every non-blank descriptor plus
// "Uncategorized", which is always present in the result. Missing
// categories are created; rows inserted concurrently by another import are
// re-read instead.
func (c *CategoryResolver) Resolve(ctx context.Context, tx *gorm.DB, restaurantID string, cats []snapshot.Category) (map[string]string, error) {
	tr := otel.Tracer("services/CategoryResolver")
	ctx, span := tr.Start(ctx, "Resolve", trace.WithAttributes(
		attribute.String("restaurant.id", restaurantID),
		attribute.Int("categories", len(cats)),
	))
	defer span.End()

	wanted := make([]snapshot.Category, 0, len(cats)+1)
	seen := make(map[string]bool, len(cats)+1)
	for _, in := range cats {
		name := normalize.Name(in.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		in.Name = name
		wanted = append(wanted, in)
	}
	if !seen[domain.UncategorizedName] {
		wanted = append(wanted, snapshot.Category{
			Name:         domain.UncategorizedName,
			Description:  uncategorizedDescription,
			DisplayOrder: uncategorizedOrder,
			Source:       domain.CategorySourceFallback,
		})
	}

	names := make([]string, len(wanted))
	for i, w := range wanted {
		names[i] = w.Name
	}
	existing, err := repo.FindCategoriesByName(ctx, tx, restaurantID, names)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(wanted))
	for _, e := range existing {
		ids[e.Name] = e.ID
	}

	var staged []domain.Category
	for _, w := range wanted {
		if _, ok := ids[w.Name]; ok {
			continue
		}
		src := w.Source
		if src == "" {
			src = domain.CategorySourceScraper
		}
		staged = append(staged, domain.Category{
			ID:           uuid.NewString(),
			RestaurantID: restaurantID,
			Name:         w.Name,
			Description:  w.Description,
			DisplayOrder: w.DisplayOrder,
			Source:       src,
		})
	}
	if len(staged) == 0 {
		return ids, nil
	}

	inserted, err := repo.InsertCategoriesIfAbsent(ctx, tx, staged)
	if err != nil {
		return nil, err
	}
	if int(inserted) == len(staged) {
		for _, s := range staged {
			ids[s.Name] = s.ID
		}
		return ids, nil
	}

	// Some rows already existed; the stored ids win over the staged ones.
	missing := make([]string, len(staged))
	for i, s := range staged {
		missing[i] = s.Name
	}
	again, err := repo.FindCategoriesByName(ctx, tx, restaurantID, missing)
	if err != nil {
		return nil, err
	}
	for _, e := range again {
		ids[e.Name] = e.ID
	}
	for _, s := range staged {
		if _, ok := ids[s.Name]; !ok {
			return nil, &CategoryResolutionError{RestaurantID: restaurantID, Category: s.Name}
		}
	}
	c.Log.Debug().Str("restaurant_id", restaurantID).Int("staged", len(staged)).Int64("inserted", inserted).Msg("categories created concurrently")
	return ids, nil
}
