package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-menu-tracker/internal/repo"
)

func TestQueryService(t *testing.T) {
	db := newSvcDB(t)
	im := newTestImporter(t, db)
	ctx := context.Background()

	mustImport(t, im, menu(t0,
		onOffer(item("A1", "Margherita", "Pizzas", 8), 20, "Happy Hour"),
		item("A2", "Cola", "Drinks", 2),
	))
	last := mustImport(t, im, menu(t0.Add(time.Hour),
		item("A1", "Margherita", "Pizzas", 10),
		item("A2", "Cola", "Drinks", 2.2),
	))

	q := &QueryService{DB: db}

	sess, err := q.Session(ctx, last.SessionID)
	require.NoError(t, err)
	assert.Equal(t, last.SessionID, sess.ID)
	_, err = q.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	list, total, err := q.Restaurants(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)

	detail, err := q.Restaurant(ctx, last.RestaurantID)
	require.NoError(t, err)
	assert.Len(t, detail.Domains, 1)
	assert.EqualValues(t, 2, detail.Stats.Products)
	assert.EqualValues(t, 4, detail.Stats.Prices)
	assert.EqualValues(t, 0, detail.Stats.ActiveOffers)

	cur, err := q.CurrentPrices(ctx, last.RestaurantID, repo.CurrentPriceFilter{})
	require.NoError(t, err)
	require.Len(t, cur, 2)
	for _, c := range cur {
		if c.Name == "Margherita" {
			assert.Equal(t, 10.0, c.Price, "current price is the latest")
		}
	}

	p, err := repo.FindProductByExternalID(ctx, db, last.RestaurantID, "A1")
	require.NoError(t, err)
	hist, err := q.PriceHistory(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 10.0, hist[0].Price)
	_, err = q.PriceHistory(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrProductNotFound)

	all, err := q.Offers(ctx, last.RestaurantID, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
	active, err := q.Offers(ctx, last.RestaurantID, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	_, err = q.Offers(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrRestaurantNotFound)

	sessions, err := q.Sessions(ctx, last.RestaurantID, 1, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, last.SessionID, sessions[0].ID)
}
