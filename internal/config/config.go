// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, the database, snapshot imports, per-restaurant
// locking, event publishing, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "menu-tracker")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	URL    string // DATABASE_URL (postgres)
}

// ImportConfig tunes snapshot imports.
type ImportConfig struct {
	DefaultCurrency string  // DEFAULT_CURRENCY, used when a product has none
	Workers         int     // IMPORT_WORKERS, concurrent snapshots in a batch
	RPS             float64 // IMPORT_RPS, batch pacing (0 = unlimited)
	PlatformsFile   string  // PLATFORMS_FILE, optional registry override
	MaxBodyBytes    int64   // MAX_BODY_BYTES for HTTP uploads
}

// LockConfig selects how same-restaurant imports are serialized.
type LockConfig struct {
	Backend       string        // LOCK_BACKEND: local|redis
	RedisAddr     string        // REDIS_ADDR
	RedisPassword string        // REDIS_PASSWORD
	RedisDB       int           // REDIS_DB
	TTL           time.Duration // LOCK_TTL
}

// EventsConfig configures import-finished events.
type EventsConfig struct {
	KafkaBrokers []string // KAFKA_BROKERS (empty disables publishing)
	KafkaTopic   string   // KAFKA_TOPIC
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Storage / imports
	DB     DBConfig
	Import ImportConfig
	Lock   LockConfig
	Events EventsConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result. The returned error lists
// every invalid setting.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              env("PORT", str, "8080"),
		ReadTimeout:       env("READ_TIMEOUT", time.ParseDuration, 15*time.Second),
		ReadHeaderTimeout: env("READ_HEADER_TIMEOUT", time.ParseDuration, 10*time.Second),
		WriteTimeout:      env("WRITE_TIMEOUT", time.ParseDuration, 20*time.Second),
		IdleTimeout:       env("IDLE_TIMEOUT", time.ParseDuration, 60*time.Second),
		MaxHeaderBytes:    env("MAX_HEADER_BYTES", strconv.Atoi, 1<<20),
		GinMode:           strings.ToLower(env("GIN_MODE", str, "release")),

		// Logging
		LogLevel:    strings.ToLower(env("LOG_LEVEL", str, "info")),
		LogPretty:   env("LOG_PRETTY", parseBool, false),
		APIBasePath: normalizeBasePath(env("API_BASE_PATH", str, "/api/v1")),

		// Storage / imports
		DB: DBConfig{
			Driver: strings.ToLower(env("DB_DRIVER", str, "sqlite")),
			Path:   env("DB_PATH", str, "menus.db"),
			URL:    env("DATABASE_URL", str, ""),
		},
		Import: ImportConfig{
			DefaultCurrency: strings.ToUpper(env("DEFAULT_CURRENCY", str, "EUR")),
			Workers:         env("IMPORT_WORKERS", strconv.Atoi, 4),
			RPS:             env("IMPORT_RPS", parseFloat, 0),
			PlatformsFile:   env("PLATFORMS_FILE", str, ""),
			MaxBodyBytes:    int64(env("MAX_BODY_BYTES", strconv.Atoi, 10<<20)),
		},
		Lock: LockConfig{
			Backend:       strings.ToLower(env("LOCK_BACKEND", str, "local")),
			RedisAddr:     env("REDIS_ADDR", str, "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", str, ""),
			RedisDB:       env("REDIS_DB", strconv.Atoi, 0),
			TTL:           env("LOCK_TTL", time.ParseDuration, 2*time.Minute),
		},
		Events: EventsConfig{
			KafkaBrokers: splitCSV(env("KAFKA_BROKERS", str, "")),
			KafkaTopic:   env("KAFKA_TOPIC", str, "menu-imports"),
		},

		// Rate limiting
		RateRPS:   env("RATE_RPS", parseFloat, 5.0),
		RateBurst: env("RATE_BURST", strconv.Atoi, 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(env("CORS_ALLOWED_ORIGINS", str, "")),
		},
		Security: SecurityConfig{
			EnableHSTS: env("ENABLE_HSTS", parseBool, false),
			HSTSMaxAge: env("HSTS_MAX_AGE", time.ParseDuration, 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     env("OTEL_ENABLED", parseBool, false),
			Endpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", str, "localhost:4317"),
			Insecure:    env("OTEL_EXPORTER_OTLP_INSECURE", parseBool, true),
			ServiceName: env("OTEL_SERVICE_NAME", str, "menu-tracker"),
			SampleRatio: env("OTEL_TRACES_SAMPLER_ARG", parseFloat, 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	return cfg, cfg.validate()
}

// validate reports every invalid setting at once.
func (c Config) validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) == "", "PORT must not be empty")
	check(c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) == "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.URL) == "", "DATABASE_URL must be set when DB_DRIVER=postgres")
	default:
		errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
	}

	check(len(c.Import.DefaultCurrency) != 3, "DEFAULT_CURRENCY must be a 3-letter code")
	check(c.Import.Workers < 1, "IMPORT_WORKERS must be >= 1")
	check(c.Import.RPS < 0, "IMPORT_RPS must be >= 0")
	check(c.Import.MaxBodyBytes <= 0, "MAX_BODY_BYTES must be > 0")

	switch c.Lock.Backend {
	case "local":
	case "redis":
		check(strings.TrimSpace(c.Lock.RedisAddr) == "", "REDIS_ADDR must be set when LOCK_BACKEND=redis")
	default:
		errs = append(errs, errors.New("LOCK_BACKEND must be one of: local, redis"))
	}
	check(c.Lock.TTL <= 0, "LOCK_TTL must be > 0")

	check(c.RateRPS < 0, "RATE_RPS must be >= 0")
	check(c.RateBurst < 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0")
	check(len(c.Events.KafkaBrokers) > 0 && strings.TrimSpace(c.Events.KafkaTopic) == "",
		"KAFKA_TOPIC must be set when KAFKA_BROKERS is")
	check(c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// env returns the parsed value of k, or def when k is unset, empty or
// unparsable.
func env[T any](k string, parse func(string) (T, error), def T) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func str(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

var errNotBool = errors.New("not a boolean")

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, errNotBool
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
