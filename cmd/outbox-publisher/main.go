package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db"
	"github.com/angelmondragon/reelforge-backend/pkg/env"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/migrate"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/registry"
	"github.com/angelmondragon/reelforge-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Debug(context.Background(), "no .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient)

	if err := migrate.AutoMigrate(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeQuietly(ctx, logg, "pubsub", pubsubClient)

	routes, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Config:     &cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Pinger:     pubsubClient.Ping,
		Repository: outbox.NewRepository(dbClient.DB()),
		DLQ:        outbox.NewDLQRepository(dbClient.DB()),
		Registry:   routes,
		Publishers: topicPublishers(pubsubClient.Publisher),
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	go metrics.Serve(ctx, logg, env.Get("REELFORGE_OUTBOX_METRICS_ADDR", ":9091"), prometheus.DefaultGatherer)

	logg.Info(ctx, "outbox publisher ready")
	return service.Run(ctx)
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
