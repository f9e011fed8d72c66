package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/reelforge-backend/internal/bootstrap"
	"github.com/angelmondragon/reelforge-backend/internal/pipeline"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db"
	"github.com/angelmondragon/reelforge-backend/pkg/env"
	"github.com/angelmondragon/reelforge-backend/pkg/instance"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/migrate"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/reelforge-backend/pkg/pubsub"
	"github.com/angelmondragon/reelforge-backend/pkg/redis"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.AutoMigrate(ctx, cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	domain, err := bootstrap.NewDomain(ctx, cfg, dbClient, redisClient, prometheus.DefaultRegisterer, logg)
	requireResource(ctx, logg, "generation services", err)
	defer func() {
		if err := domain.Close(); err != nil {
			logg.Error(ctx, "error closing providers", err)
		}
	}()

	subscription := pubsubClient.GenerationSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "generation subscription", errors.New("subscription not configured"))
	}
	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := pipeline.NewConsumer(subscription, domain.Pipeline, manager, logg)
	requireResource(ctx, logg, "generation consumer", err)

	params := ServiceParams{
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
	}
	if p, ok := domain.Blob.(storage.Pinger); ok {
		params.Storage = p
	}
	service, err := NewService(params)
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go metrics.Serve(runCtx, logg, env.Get("REELFORGE_WORKER_METRICS_ADDR", ":9090"), prometheus.DefaultGatherer)

	logg.Info(runCtx, "starting worker")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
