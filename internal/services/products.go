package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/normalize"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

// Outcome tells how a product record was matched to a stored product.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"   // same external id, same name
	OutcomeRenamed   Outcome = "renamed"   // same external id, new name
	OutcomeMigrated  Outcome = "migrated"  // matched by name, external id rewritten
	OutcomeDuplicate Outcome = "duplicate" // matched by name, several candidates
	OutcomeCreated   Outcome = "created"
)

// generatedIDPrefix marks external ids minted for products the scraper sent
// without one.
const generatedIDPrefix = "gen-"

// Resolution is the result of ProductResolver.Resolve.
type Resolution struct {
	ProductID  string
	CategoryID string
	Outcome    Outcome
}

// ProductResolver maps a product record to a stable product id.
type ProductResolver struct {
	Log zerolog.Logger
}

// Resolve finds the product by external id, then by exact name, and creates
// it when neither matches. A different name under a known external id is a
// rename; a known name under a different external id is an external-id
// migration. When several products share the name the oldest one is used and
// the conflict is logged; duplicates are never merged here.
func (r *ProductResolver) Resolve(ctx context.Context, tx *gorm.DB, restaurantID string, p snapshot.Product, categories map[string]string) (Resolution, error) {
	name := normalize.Name(p.Name)

	tr := otel.Tracer("services/ProductResolver")
	ctx, span := tr.Start(ctx, "Resolve", trace.WithAttributes(
		attribute.String("restaurant.id", restaurantID),
		attribute.String("product.name", name),
	))
	defer span.End()

	categoryID, err := categoryFor(restaurantID, p.Category, categories)
	if err != nil {
		return Resolution{}, err
	}

	var extID string
	if p.ExternalID != nil {
		extID = normalize.Name(*p.ExternalID)
	}

	if extID != "" {
		existing, err := repo.FindProductByExternalID(ctx, tx, restaurantID, extID)
		switch {
		case err == nil:
			fields := refreshFields(existing, p, categoryID)
			out := OutcomeMatched
			if existing.Name != name {
				fields["name"] = name
				out = OutcomeRenamed
				r.Log.Info().
					Str("product_id", existing.ID).
					Str("external_id", extID).
					Str("from", existing.Name).
					Str("to", name).
					Msg("product renamed")
			}
			if err := applyFields(ctx, tx, existing.ID, fields); err != nil {
				return Resolution{}, err
			}
			return Resolution{ProductID: existing.ID, CategoryID: categoryID, Outcome: out}, nil
		case !errors.Is(err, repo.ErrNotFound):
			return Resolution{}, err
		}
	}

	candidates, err := repo.FindProductsByName(ctx, tx, restaurantID, name)
	if err != nil {
		return Resolution{}, err
	}
	if len(candidates) > 0 {
		existing := candidates[0]
		out := OutcomeMatched
		if len(candidates) > 1 {
			out = OutcomeDuplicate
			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			r.Log.Warn().
				Str("restaurant_id", restaurantID).
				Str("name", name).
				Strs("product_ids", ids).
				Str("chosen", existing.ID).
				Msg("duplicate product name; using oldest")
		}
		fields := refreshFields(&existing, p, categoryID)
		// An ambiguous name match keeps the chosen row's external id.
		if out == OutcomeMatched && extID != "" && (existing.ExternalID == nil || *existing.ExternalID != extID) {
			fields["external_id"] = extID
			out = OutcomeMigrated
			r.Log.Info().
				Str("product_id", existing.ID).
				Str("from", deref(existing.ExternalID)).
				Str("to", extID).
				Msg("product external id migrated")
		}
		if err := applyFields(ctx, tx, existing.ID, fields); err != nil {
			return Resolution{}, err
		}
		return Resolution{ProductID: existing.ID, CategoryID: categoryID, Outcome: out}, nil
	}

	if extID == "" {
		extID = generatedIDPrefix + uuid.NewString()
	}
	np := &domain.Product{
		ID:           uuid.NewString(),
		RestaurantID: restaurantID,
		CategoryID:   categoryID,
		ExternalID:   &extID,
		Name:         name,
		Description:  p.Description,
		ImageURL:     p.ImageURL,
	}
	if len(p.Options) > 0 {
		np.Options = datatypes.JSON(p.Options)
	}
	if err := repo.CreateProduct(ctx, tx, np); err != nil {
		return Resolution{}, err
	}
	return Resolution{ProductID: np.ID, CategoryID: categoryID, Outcome: OutcomeCreated}, nil
}

// categoryFor picks the product's category, falling back to Uncategorized.
func categoryFor(restaurantID, name string, categories map[string]string) (string, error) {
	if id, ok := categories[normalize.Name(name)]; ok && name != "" {
		return id, nil
	}
	if id, ok := categories[domain.UncategorizedName]; ok {
		return id, nil
	}
	return "", &CategoryResolutionError{RestaurantID: restaurantID, Category: name}
}

// refreshFields returns the descriptive columns that changed. Empty incoming
// values never clear stored ones.
func refreshFields(existing *domain.Product, p snapshot.Product, categoryID string) map[string]any {
	fields := map[string]any{}
	if existing.CategoryID != categoryID {
		fields["category_id"] = categoryID
	}
	if p.Description != "" && p.Description != existing.Description {
		fields["description"] = p.Description
	}
	if p.ImageURL != "" && p.ImageURL != existing.ImageURL {
		fields["image_url"] = p.ImageURL
	}
	if len(p.Options) > 0 && string(p.Options) != string(existing.Options) {
		fields["options"] = datatypes.JSON(p.Options)
	}
	return fields
}

func applyFields(ctx context.Context, tx *gorm.DB, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return repo.UpdateProduct(ctx, tx, id, fields)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
