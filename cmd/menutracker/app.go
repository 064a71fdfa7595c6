package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/config"
	"github.com/tbourn/go-menu-tracker/internal/events"
	"github.com/tbourn/go-menu-tracker/internal/lock"
	"github.com/tbourn/go-menu-tracker/internal/observability"
	"github.com/tbourn/go-menu-tracker/internal/platform"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/services"
	"github.com/tbourn/go-menu-tracker/internal/sysutil"
)

// app holds everything a subcommand needs. close releases it in reverse
// order of construction.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *gorm.DB
	importer *services.Importer
	query    *services.QueryService
	maint    *services.MaintenanceService

	closers []func(context.Context) error
}

func newApp(ctx context.Context, component string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("config: %w", err))
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	a := &app{cfg: cfg, log: sysutil.NewLogger(os.Stderr, cfg.LogPretty, component)}

	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{Version: version, Component: component})
		if err != nil {
			return nil, fmt.Errorf("otel: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			return observability.ShutdownWithTimeout(shutdown, 5*time.Second)
		})
	}

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		DSN:     cfg.DB.URL,
		Tracing: cfg.OTEL.Enabled,
		Silent:  cfg.LogLevel != "debug",
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := repo.AutoMigrate(db); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	reg, err := platform.Load(cfg.Import.PlatformsFile)
	if err != nil {
		a.close()
		return nil, withCode(exitUsage, fmt.Errorf("platforms: %w", err))
	}

	locker, err := a.locker()
	if err != nil {
		a.close()
		return nil, err
	}
	pub, err := a.publisher()
	if err != nil {
		a.close()
		return nil, err
	}

	a.importer, err = services.NewImporter(db, services.ImporterOptions{
		Registry:        reg,
		DefaultCurrency: cfg.Import.DefaultCurrency,
		Workers:         cfg.Import.Workers,
		RPS:             cfg.Import.RPS,
		Locker:          locker,
		Events:          pub,
		Log:             a.log,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.query = &services.QueryService{DB: db}
	a.maint = &services.MaintenanceService{DB: db, Log: a.log}

	a.log.Info().
		Str("version", version).
		Str("db_driver", cfg.DB.Driver).
		Str("lock_backend", cfg.Lock.Backend).
		Int("workers", cfg.Import.Workers).
		Bool("events", len(cfg.Events.KafkaBrokers) > 0).
		Msg("menutracker ready")
	return a, nil
}

func (a *app) locker() (lock.Locker, error) {
	if a.cfg.Lock.Backend != "redis" {
		return lock.NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Lock.RedisAddr,
		Password: a.cfg.Lock.RedisPassword,
		DB:       a.cfg.Lock.RedisDB,
	})
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return lock.NewRedis(client, "menutracker:lock:", a.cfg.Lock.TTL, a.log), nil
}

func (a *app) publisher() (events.Publisher, error) {
	if len(a.cfg.Events.KafkaBrokers) == 0 {
		return events.Nop{}, nil
	}
	k, err := events.NewKafka(a.cfg.Events.KafkaBrokers, a.cfg.Events.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return k.Close() })
	return k, nil
}

func (a *app) close() {
	ctx := context.Background()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Warn().Err(err).Msg("shutdown")
	}
}
