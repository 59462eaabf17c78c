package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/venuefinder/internal/adapters/csvstore"
	"github.com/samirrijal/venuefinder/internal/adapters/http"
	"github.com/samirrijal/venuefinder/internal/adapters/memindex"
	natsadapter "github.com/samirrijal/venuefinder/internal/adapters/nats"
	"github.com/samirrijal/venuefinder/internal/adapters/postgres"
	"github.com/samirrijal/venuefinder/internal/adapters/valkey"
	"github.com/samirrijal/venuefinder/internal/core/ports"
	"github.com/samirrijal/venuefinder/internal/core/usecases"
	"github.com/samirrijal/venuefinder/internal/pkg/config"
	"github.com/samirrijal/venuefinder/internal/pkg/logging"
	"github.com/samirrijal/venuefinder/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("venuefinder-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Catalog and record store
	var (
		catalog ports.SourceCatalog
		store   ports.RecordStore
		index   *memindex.Store
		db      *postgres.DB
	)
	switch cfg.Catalog.Driver {
	case "postgres":
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		catalog = postgres.NewSourceRepo(db)
		store = postgres.NewEntranceRepo(db)
		go reportDBStats(ctx, db)
	default:
		fileCatalog, err := csvstore.NewCatalog(ctx, cfg.Data.Dir, cfg.Data.Catalog, slog.Default())
		if err != nil {
			// Served as an empty catalog until a reload succeeds.
			slog.Warn("catalog unavailable", "dir", cfg.Data.Dir, "file", cfg.Data.Catalog, "error", err)
		}
		catalog = fileCatalog
		store = csvstore.NewStore(cfg.Data.Dir)
	}
	if cfg.Data.Index {
		index = memindex.New(store)
		store = index
	}

	// Cache
	var cache *valkey.Cache
	if cfg.Valkey.Enabled {
		cache, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// NATS
	var (
		natsConn  *nats.Conn
		publisher *natsadapter.Publisher
	)
	if cfg.NATS.Enabled {
		natsConn, err = natsadapter.Connect(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer natsConn.Drain()
			publisher, err = natsadapter.NewPublisher(natsConn)
			if err != nil {
				slog.Warn("nats publisher unavailable", "error", err)
				publisher = nil
			}
		}
	}

	// Use cases
	opts := []usecases.Option{
		usecases.WithScoreCutoff(cfg.Search.ScoreCutoff),
		usecases.WithSourceLimit(cfg.Search.SourceLimit),
		usecases.WithWorkers(cfg.Search.Workers),
		usecases.WithLogger(slog.Default()),
	}
	var sourceCache ports.CacheService
	if cache != nil {
		opts = append(opts, usecases.WithCache(cache, cfg.Valkey.TTL))
		sourceCache = cache
	}
	if publisher != nil {
		opts = append(opts, usecases.WithEvents(publisher))
	}

	entranceSvc, err := usecases.NewEntranceService(catalog, store, opts...)
	if err != nil {
		log.Fatalf("entrance service: %v", err)
	}
	defer entranceSvc.Release()

	sourceSvc := usecases.NewSourceService(catalog, sourceCache)
	if index != nil {
		sourceSvc.OnReload(index.Reset)
	}

	// Catalog reloads: SIGHUP locally, entrances.catalog.reload across replicas.
	if natsConn != nil {
		sub := natsadapter.NewSubscriber(natsConn)
		if err := sub.SubscribeCatalogReload(ctx, sourceSvc.Reload); err != nil {
			slog.Warn("reload subscription failed", "error", err)
		} else {
			defer sub.Close()
		}
	}
	go reloadOnHangup(ctx, sourceSvc)

	deps := &http.Dependencies{
		Entrances:    entranceSvc,
		Sources:      sourceSvc,
		QueryTimeout: time.Duration(cfg.Server.QueryTimeout) * time.Second,
		NATS:         natsConn,
		DB:           db,
		Cache:        cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Venue Finder API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "catalog", cfg.Catalog.Driver, "index", cfg.Data.Index)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// reloadOnHangup re-reads the catalog on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, sources *usecases.SourceService) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			err := sources.Reload(ctx)
			switch {
			case errors.Is(err, usecases.ErrReloadUnsupported):
				slog.Info("catalog reload ignored", "reason", err)
			case err != nil:
				slog.Error("catalog reload failed", "error", err)
			}
		}
	}
}

func reportDBStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.ReportStats()
		}
	}
}
