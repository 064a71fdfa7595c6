package config

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.APIBasePath != "/api/v1" || cfg.GinMode != "release" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "menus.db" {
		t.Fatalf("db defaults: %+v", cfg.DB)
	}
	if cfg.Import.DefaultCurrency != "EUR" || cfg.Import.Workers != 4 || cfg.Import.MaxBodyBytes != 10<<20 {
		t.Fatalf("import defaults: %+v", cfg.Import)
	}
	if cfg.Lock.Backend != "local" || cfg.Lock.TTL != 2*time.Minute || len(cfg.Events.KafkaBrokers) != 0 {
		t.Fatalf("lock/events defaults: %+v %+v", cfg.Lock, cfg.Events)
	}
	if cfg.OTEL.Enabled || !cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "menu-tracker" {
		t.Fatalf("otel defaults: %+v", cfg.OTEL)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	for k, v := range map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "warning",
		"LOG_PRETTY":                  "yes",
		"API_BASE_PATH":               "api/v1/",
		"DB_DRIVER":                   "Postgres",
		"DATABASE_URL":                "postgres://u:p@db/menus",
		"DEFAULT_CURRENCY":            "usd",
		"IMPORT_WORKERS":              "8",
		"IMPORT_RPS":                  "2.5",
		"LOCK_BACKEND":                "redis",
		"REDIS_ADDR":                  "redis:6379",
		"LOCK_TTL":                    "30s",
		"KAFKA_BROKERS":               "k1:9092, k2:9092",
		"KAFKA_TOPIC":                 "imports",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.Import.DefaultCurrency != "USD" || cfg.Import.Workers != 8 || cfg.Import.RPS != 2.5 {
		t.Fatalf("storage/import: %+v %+v", cfg.DB, cfg.Import)
	}
	if cfg.Lock.Backend != "redis" || cfg.Lock.TTL != 30*time.Second {
		t.Fatalf("lock: %+v", cfg.Lock)
	}
	if !reflect.DeepEqual(cfg.Events.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("brokers: %#v", cfg.Events.KafkaBrokers)
	}
	// Unparsable values fall back to defaults.
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limit: %v %v", cfg.RateRPS, cfg.RateBurst)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security: %+v", cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Insecure || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"blank db path", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"currency", map[string]string{"DEFAULT_CURRENCY": "EURO"}, "DEFAULT_CURRENCY"},
		{"workers", map[string]string{"IMPORT_WORKERS": "0"}, "IMPORT_WORKERS"},
		{"import rps", map[string]string{"IMPORT_RPS": "-1"}, "IMPORT_RPS"},
		{"body bytes", map[string]string{"MAX_BODY_BYTES": "-5"}, "MAX_BODY_BYTES"},
		{"lock backend", map[string]string{"LOCK_BACKEND": "etcd"}, "LOCK_BACKEND"},
		{"redis addr", map[string]string{"LOCK_BACKEND": "redis", "REDIS_ADDR": " "}, "REDIS_ADDR"},
		{"lock ttl", map[string]string{"LOCK_TTL": "0s"}, "LOCK_TTL"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"kafka topic", map[string]string{"KAFKA_BROKERS": "k1:9092", "KAFKA_TOPIC": " "}, "KAFKA_TOPIC"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	t.Setenv("IMPORT_WORKERS", "0")
	t.Setenv("RATE_BURST", "0")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "IMPORT_WORKERS") || !strings.Contains(err.Error(), "RATE_BURST") {
		t.Fatalf("expected both problems, got %v", err)
	}
}

func TestMustLoad(t *testing.T) {
	if cfg := MustLoad(); cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}

	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestEnv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	t.Setenv("X_INT", "42")
	t.Setenv("X_BAD_INT", "x")
	t.Setenv("X_DUR", "150ms")
	t.Setenv("X_FLOAT", "3.14")

	if env("X_EMPTY", str, "d") != "d" || env("X_UNSET", str, "d") != "d" {
		t.Fatalf("empty or unset must use the default")
	}
	if env("X_INT", strconv.Atoi, 0) != 42 || env("X_BAD_INT", strconv.Atoi, 7) != 7 {
		t.Fatalf("int parsing")
	}
	if env("X_DUR", time.ParseDuration, time.Second) != 150*time.Millisecond {
		t.Fatalf("duration parsing")
	}
	if env("X_FLOAT", parseFloat, 0) != 3.14 {
		t.Fatalf("float parsing")
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "TRUE", " yes ", "Y", "on"} {
		if b, err := parseBool(v); err != nil || !b {
			t.Fatalf("parseBool(%q) = %v, %v", v, b, err)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "Off"} {
		if b, err := parseBool(v); err != nil || b {
			t.Fatalf("parseBool(%q) = %v, %v", v, b, err)
		}
	}
	if _, err := parseBool("maybe"); err == nil {
		t.Fatalf("expected error for unknown value")
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV: %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
