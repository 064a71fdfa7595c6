// Package httpapi mounts the import API on a Gin engine: tracing, request
// ids, access logs, recovery, metrics, rate limiting, compression, CORS and
// security headers, then the snapshot and read endpoints under the
// configured base path.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/config"
	"github.com/tbourn/go-menu-tracker/internal/http/handlers"
	"github.com/tbourn/go-menu-tracker/internal/http/middleware"
)

// Deps are the services the routes are bound to.
type Deps struct {
	DB       *gorm.DB // pinged by /health
	Importer handlers.SnapshotImporter
	Reader   handlers.MenuReader
	Log      zerolog.Logger
}

const defaultMaxBody = 10 << 20

// RegisterRoutes installs middleware and routes on r.
//
// Order:
//  1. otelgin
//  2. RequestID, Logger, Recovery
//  3. Metrics, then /metrics
//  4. rate limiter keyed by scraper or IP
//  5. gzip (responses, and gzip-encoded uploads), then the body cap so it
//     applies to the decompressed size
//  6. CORS, security headers
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Recovery(d.Log))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.RateRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByScraperOrIP())
		r.Use(rl.Handler())
	}

	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics"}),
		gzip.WithDecompressFn(gzip.DefaultDecompressHandle),
	))
	maxBody := cfg.Import.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	r.Use(limitBody(maxBody))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(d.DB))

	h := handlers.New(d.Importer, d.Reader)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/snapshots", h.PostSnapshot)
		api.POST("/snapshots/batch", h.PostSnapshotBatch)
		api.GET("/sessions/:id", h.GetSession)

		api.GET("/restaurants", h.ListRestaurants)
		api.GET("/restaurants/:id", h.GetRestaurant)
		api.GET("/restaurants/:id/prices", h.ListCurrentPrices)
		api.GET("/restaurants/:id/offers", h.ListOffers)
		api.GET("/restaurants/:id/sessions", h.ListSessions)

		api.GET("/products/:id/prices", h.PriceHistory)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Encoding", "Accept", "X-Request-ID", "X-Scraper-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// health reports 503 when the database does not answer a ping.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("health: database unreachable")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix treats "" and "/" as the root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
