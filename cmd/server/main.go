package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/agenthunt/internal/catalogue"
	"github.com/playperu/agenthunt/internal/config"
	"github.com/playperu/agenthunt/internal/database"
	"github.com/playperu/agenthunt/internal/game"
	"github.com/playperu/agenthunt/internal/handler/health"
	"github.com/playperu/agenthunt/internal/migrations"
	"github.com/playperu/agenthunt/internal/persist"
	"github.com/playperu/agenthunt/internal/server"
)

const sharePurgeInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{
		"sqlite": health.CheckFunc(db.PingContext),
	}

	// --- Redis (optional) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		checks["redis"] = health.CheckFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info("connected to redis")
	}
	if cfg.StoreEngine == persist.EngineFile {
		checks["files"] = health.DirChecker(cfg.DataDir)
	}

	// --- Catalogue ---
	cat := catalogue.Default()
	if cfg.CataloguePath != "" {
		if cat, err = catalogue.Load(cfg.CataloguePath); err != nil {
			return fmt.Errorf("loading catalogue: %w", err)
		}
	}
	logger.Info("catalogue loaded", "checkpoints", cat.Len(), "path", cfg.CataloguePath)

	// --- Persistence ---
	stores, err := persist.Open(cfg.StoreEngine, persist.Backends{
		DB:      db,
		Redis:   rdb,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	saver := persist.NewAutosaver(stores.Snapshots, logger, cfg.AutosaveInterval)
	logger.Info("persistence ready", "engine", cfg.StoreEngine, "autosave", cfg.AutosaveInterval)

	// --- Game ---
	broker := server.NewBroker()
	svc := game.New(cat, stores, saver, logger,
		game.WithPublisher(broker),
		game.WithShareConfig(game.ShareConfig{
			PublicURL:  cfg.PublicURL,
			QREndpoint: cfg.QREndpoint,
			TTL:        cfg.ShareTTL,
		}),
	)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Service:             svc,
		Broker:              broker,
		Health:              health.NewHandler(logger, checks).Routes(),
		SPADir:              cfg.SPADir,
		ControlUser:         cfg.ControlUser,
		ControlPasswordHash: cfg.ControlPasswordHash,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	// The autosaver outlives gctx so requests drained during shutdown still
	// reach storage; Close triggers its final save.
	g.Go(func() error {
		return saver.Run(context.WithoutCancel(gctx))
	})

	g.Go(func() error {
		purgeShares(gctx, stores.SQLite, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		err := srv.Shutdown(context.Background())
		saver.Close()
		logger.Info("autosaver flushed", "pending", saver.Pending())
		return err
	})

	return g.Wait()
}

// purgeShares drops expired share rows from libSQL until ctx ends. Redis
// and file shares expire on their own.
func purgeShares(ctx context.Context, store *persist.SQLiteStore, logger *slog.Logger) {
	t := time.NewTicker(sharePurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.PurgeExpiredShares(ctx)
			if err != nil {
				logger.Error("purging shares", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired shares", "count", n)
			}
		}
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
