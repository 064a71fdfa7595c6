package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

// ActiveOffer is one offer observed in a snapshot.
type ActiveOffer struct {
	Name     string
	Discount float64
}

// ActiveOfferSet collects the distinct offers of products in first-seen
// order. The discount of an offer comes from the first product carrying it.
func ActiveOfferSet(products []snapshot.Product) []ActiveOffer {
	var out []ActiveOffer
	seen := map[string]bool{}
	for i := range products {
		name := products[i].OfferLabel()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, ActiveOffer{Name: name, Discount: products[i].DiscountPercentage})
	}
	return out
}

// OfferResult reports the offer ids of the active set and the transitions
// performed.
type OfferResult struct {
	IDs         map[string]string `json:"-"`
	Created     int               `json:"created"`
	Continued   int               `json:"continued"`
	Reactivated int               `json:"reactivated"`
	Deactivated int               `json:"deactivated"`
}

// Transitions returns the counts keyed by transition name.
func (r OfferResult) Transitions() map[string]int {
	return map[string]int{
		"created":     r.Created,
		"continued":   r.Continued,
		"reactivated": r.Reactivated,
		"deactivated": r.Deactivated,
	}
}

// OfferReconciler brings a restaurant's stored offers in line with the
// offers seen in a snapshot.
type OfferReconciler interface {
	Reconcile(ctx context.Context, tx *gorm.DB, restaurantID string, active []ActiveOffer, at time.Time) (OfferResult, error)
}

// OfferManager is the database-backed OfferReconciler.
type OfferManager struct {
	Log zerolog.Logger
}

// Reconcile deactivates every active offer missing from active, then
// continues, reactivates or creates each offer in active. Every failure is
// returned as an *OfferReconciliationError.
func (m *OfferManager) Reconcile(ctx context.Context, tx *gorm.DB, restaurantID string, active []ActiveOffer, at time.Time) (OfferResult, error) {
	tr := otel.Tracer("services/OfferManager")
	ctx, span := tr.Start(ctx, "Reconcile", trace.WithAttributes(
		attribute.String("restaurant.id", restaurantID),
		attribute.Int("offers.active", len(active)),
	))
	defer span.End()

	res := OfferResult{IDs: make(map[string]string, len(active))}

	stored, err := repo.ListOffers(ctx, tx, restaurantID, false)
	if err != nil {
		return res, &OfferReconciliationError{Op: "load", Err: err}
	}
	byName := make(map[string]domain.Offer, len(stored))
	for _, o := range stored {
		byName[o.Name] = o
	}
	wanted := make(map[string]bool, len(active))
	for _, a := range active {
		wanted[a.Name] = true
	}

	for _, o := range stored {
		if !o.IsActive || wanted[o.Name] {
			continue
		}
		if err := repo.UpdateOffer(ctx, tx, o.ID, map[string]any{"is_active": false, "end_at": at}); err != nil {
			return res, &OfferReconciliationError{Offer: o.Name, Op: "deactivate", Err: err}
		}
		res.Deactivated++
	}

	for _, a := range active {
		o, ok := byName[a.Name]
		if !ok {
			id, created, err := m.create(ctx, tx, restaurantID, a, at)
			if err != nil {
				return res, &OfferReconciliationError{Offer: a.Name, Op: "create", Err: err}
			}
			if created {
				res.IDs[a.Name] = id
				res.Created++
				continue
			}
			// Lost a race with another import; treat the stored row as ours.
			found, err := repo.FindOfferByName(ctx, tx, restaurantID, a.Name)
			if err != nil {
				return res, &OfferReconciliationError{Offer: a.Name, Op: "create", Err: err}
			}
			o = *found
		}

		if o.IsActive {
			if err := repo.UpdateOffer(ctx, tx, o.ID, discountFields(a.Discount)); err != nil {
				return res, &OfferReconciliationError{Offer: a.Name, Op: "continue", Err: err}
			}
			res.Continued++
		} else {
			fields := discountFields(a.Discount)
			fields["is_active"] = true
			fields["start_at"] = at
			fields["end_at"] = nil
			if err := repo.UpdateOffer(ctx, tx, o.ID, fields); err != nil {
				return res, &OfferReconciliationError{Offer: a.Name, Op: "reactivate", Err: err}
			}
			res.Reactivated++
			m.Log.Debug().Str("restaurant_id", restaurantID).Str("offer", a.Name).Msg("offer reactivated")
		}
		res.IDs[a.Name] = o.ID
	}
	return res, nil
}

func (m *OfferManager) create(ctx context.Context, tx *gorm.DB, restaurantID string, a ActiveOffer, at time.Time) (string, bool, error) {
	o := &domain.Offer{
		ID:           uuid.NewString(),
		RestaurantID: restaurantID,
		Name:         a.Name,
		OfferType:    offerType(a.Discount),
		IsActive:     true,
		StartAt:      at,
	}
	if a.Discount > 0 {
		d := a.Discount
		o.DiscountPercentage = &d
	}
	inserted, err := repo.InsertOfferIfAbsent(ctx, tx, o)
	if err != nil {
		return "", false, err
	}
	if !inserted {
		return "", false, nil
	}
	return o.ID, true, nil
}

func offerType(discount float64) string {
	if discount > 0 {
		return domain.OfferTypePercentage
	}
	return domain.OfferTypeOther
}

// discountFields refreshes discount and type; a zero discount is stored as
// NULL.
func discountFields(discount float64) map[string]any {
	fields := map[string]any{"offer_type": offerType(discount)}
	if discount > 0 {
		fields["discount_percentage"] = discount
	} else {
		fields["discount_percentage"] = nil
	}
	return fields
}
