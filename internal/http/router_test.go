package httpapi

import (
	"bytes"
	gz "compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-menu-tracker/internal/config"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("router_%s.db", uuid.NewString()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newRouter(t *testing.T, db *gorm.DB, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	im, err := services.NewImporter(db, services.ImporterOptions{Workers: 1, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("importer: %v", err)
	}
	r := gin.New()
	RegisterRoutes(r, Deps{DB: db, Importer: im, Reader: &services.QueryService{DB: db}, Log: zerolog.Nop()}, cfg)
	return r
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		Import:      config.ImportConfig{MaxBodyBytes: 1 << 20},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func snapshotDoc(restaurant string) []byte {
	return []byte(`{
		"metadata": {"scraper_version": "2.1.0", "scraped_at": "2025-03-01T12:00:00Z"},
		"source": {"url": "https://foody.com.cy/menu/x", "domain": "foody.com.cy"},
		"restaurant": {"name": "` + restaurant + `"},
		"categories": [{"name": "Mains"}],
		"products": [{"id": "A1", "name": "Soup", "price": 4.5, "category": "Mains"}]
	}`)
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	r := newRouter(t, newTestDB(t), baseConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-all CORS expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("request id or security headers missing: %v", w.Header())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("menu_http_requests_total")) {
		t.Fatalf("GET /metrics: code=%d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health = %d", w.Code)
	}
}

func TestRegisterRoutes_CORSAllowList(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	r := newRouter(t, newTestDB(t), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected origin echo, got %q", got)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("disallowed origin should be refused, got %d", w.Code)
	}
}

func TestRegisterRoutes_SnapshotUploadPlainAndGzip(t *testing.T) {
	db := newTestDB(t)
	r := newRouter(t, db, baseConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", bytes.NewReader(snapshotDoc("Plain Cafe")))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("plain upload: %d %s", w.Code, w.Body.String())
	}

	var buf bytes.Buffer
	zw := gz.NewWriter(&buf)
	if _, err := zw.Write(snapshotDoc("Zipped Cafe")); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	_ = zw.Close()

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("gzip upload: %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("response should be compressed when accepted")
	}
	zr, err := gz.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gunzip response: %v", err)
	}
	body, _ := io.ReadAll(zr)
	var res services.ImportResult
	if err := json.Unmarshal(body, &res); err != nil || res.Products != 1 {
		t.Fatalf("decoded result: %+v %v", res, err)
	}

	var n int64
	db.Table("restaurants").Count(&n)
	if n != 2 {
		t.Fatalf("expected 2 restaurants, got %d", n)
	}
}

func TestRegisterRoutes_BodyCap(t *testing.T) {
	cfg := baseConfig()
	cfg.Import.MaxBodyBytes = 64
	r := newRouter(t, newTestDB(t), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", bytes.NewReader(snapshotDoc("Big")))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	r := gin.New()
	r.GET("/health", health(db))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func Test_limitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
