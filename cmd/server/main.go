package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/campustour/internal/config"
	"github.com/playperu/campustour/internal/database"
	"github.com/playperu/campustour/internal/handler/health"
	"github.com/playperu/campustour/internal/migrations"
	"github.com/playperu/campustour/internal/server"
)

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

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{
		"sqlite": health.DB(db),
		"images": health.Dir(cfg.ImagesDir),
	}

	// --- Redis (optional) ---
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		checks["redis"] = health.Redis(rdb)
		logger.Info("connected to redis")
	}

	// --- Images ---
	if err := os.MkdirAll(cfg.ImagesDir, 0o755); err != nil {
		return fmt.Errorf("creating images dir: %w", err)
	}
	broker := server.NewBroker()
	catalog := server.NewCatalog(cfg.ImagesDir, broker, logger)
	if _, err := catalog.Refresh(); err != nil {
		return fmt.Errorf("reading images dir: %w", err)
	}
	logger.Info("image catalog loaded", "dir", cfg.ImagesDir, "images", len(catalog.List()))

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.App{
		Store:     server.NewDocStore(db),
		Broker:    broker,
		Catalog:   catalog,
		PublicDir: cfg.PublicDir,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("watching images", "dir", cfg.ImagesDir)
		return catalog.Watch(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
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
