package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/services"
	"github.com/tbourn/go-menu-tracker/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxHistory      = 1000
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRestaurantsResponse is a page of restaurants.
type ListRestaurantsResponse struct {
	Restaurants []domain.Restaurant `json:"restaurants"`
	Pagination  Pagination          `json:"pagination"`
}

func pageParams(c *gin.Context) (int, int) {
	return utils.Page(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		defaultPageSize, maxPageSize,
	)
}

// notFoundOr writes 404 for the read side's not-found sentinels and 500
// for anything else.
func notFoundOr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrRestaurantNotFound),
		errors.Is(err, services.ErrProductNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a scraping session
// @Description Returns one import session with its phase, counters and recorded errors.
// @Tags        Sessions
// @Produce     json
// @Param       id   path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object} domain.ScrapingSession
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.read.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		notFoundOr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// ListRestaurants godoc
// @ID          listRestaurants
// @Summary     List restaurants
// @Tags        Restaurants
// @Produce     json
// @Param       page       query  int  false  "Page number (1-based)"  default(1)
// @Param       page_size  query  int  false  "Items per page"         default(20) maximum(200)
// @Success     200  {object} handlers.ListRestaurantsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /restaurants [get]
func (h *Handlers) ListRestaurants(c *gin.Context) {
	page, size := pageParams(c)
	items, total, err := h.read.Restaurants(c.Request.Context(), page, size)
	if err != nil {
		notFoundOr(c, err)
		return
	}
	pages := int((total + int64(size) - 1) / int64(size))
	ok(c, http.StatusOK, ListRestaurantsResponse{
		Restaurants: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: pages,
			HasNext:    page < pages,
		},
	})
}

// GetRestaurant godoc
// @ID          getRestaurant
// @Summary     Get a restaurant
// @Description Returns a restaurant with the domains it was seen on and its row counts.
// @Tags        Restaurants
// @Produce     json
// @Param       id   path  string  true  "Restaurant ID (UUID)"  format(uuid)
// @Success     200  {object} services.RestaurantDetail
// @Failure     404  {object} handlers.ErrorResponse "Restaurant not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /restaurants/{id} [get]
func (h *Handlers) GetRestaurant(c *gin.Context) {
	d, err := h.read.Restaurant(c.Request.Context(), c.Param("id"))
	if err != nil {
		notFoundOr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// ListCurrentPrices godoc
// @ID          listCurrentPrices
// @Summary     Current menu prices
// @Description Returns the latest observed price of every product of a restaurant.
// @Tags        Prices
// @Produce     json
// @Param       id          path   string  true   "Restaurant ID (UUID)"  format(uuid)
// @Param       category    query  string  false  "Category name"
// @Param       available   query  bool    false  "Only available products"
// @Param       discounted  query  bool    false  "Only discounted products"
// @Success     200  {object} map[string][]repo.CurrentPrice
// @Failure     404  {object} handlers.ErrorResponse "Restaurant not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /restaurants/{id}/prices [get]
func (h *Handlers) ListCurrentPrices(c *gin.Context) {
	f := repo.CurrentPriceFilter{
		Category:       c.Query("category"),
		AvailableOnly:  utils.BoolDefault(c.Query("available"), false),
		DiscountedOnly: utils.BoolDefault(c.Query("discounted"), false),
	}
	rows, err := h.read.CurrentPrices(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		notFoundOr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"prices": rows})
}

// ListOffers godoc
// @ID          listOffers
// @Summary     List offers
// @Description Returns a restaurant's offers, only the active ones when active=true.
// @Tags        Offers
// @Produce     json
// @Param       id      path   string  true   "Restaurant ID (UUID)"  format(uuid)
// @Param       active  query  bool    false  "Only active offers"
// @Success     200  {object} map[string][]domain.Offer
// @Failure     404  {object} handlers.ErrorResponse "Restaurant not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /restaurants/{id}/offers [get]
func (h *Handlers) ListOffers(c *gin.Context) {
	offers, err := h.read.Offers(c.Request.Context(), c.Param("id"), utils.BoolDefault(c.Query("active"), false))
	if err != nil {
		notFoundOr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"offers": offers})
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List a restaurant's sessions
// @Description Returns import sessions of a restaurant, newest first.
// @Tags        Sessions
// @Produce     json
// @Param       id         path   string  true   "Restaurant ID (UUID)"  format(uuid)
// @Param       page       query  int     false  "Page number (1-based)"  default(1)
// @Param       page_size  query  int     false  "Items per page"         default(20) maximum(200)
// @Success     200  {object} map[string]any
// @Failure     404  {object} handlers.ErrorResponse "Restaurant not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /restaurants/{id}/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	page, size := pageParams(c)
	ss, err := h.read.Sessions(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		notFoundOr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"sessions": ss, "page": page, "page_size": size})
}

// PriceHistory godoc
// @ID          priceHistory
// @Summary     Product price history
// @Description Returns a product's price observations, newest first.
// @Tags        Prices
// @Produce     json
// @Param       id     path   string  true   "Product ID (UUID)"  format(uuid)
// @Param       limit  query  int     false  "Max rows (0 = all)" maximum(1000)
// @Success     200  {object} map[string][]domain.ProductPrice
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /products/{id}/prices [get]
func (h *Handlers) PriceHistory(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	if limit > maxHistory {
		limit = maxHistory
	}
	rows, err := h.read.PriceHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		notFoundOr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"prices": rows})
}
