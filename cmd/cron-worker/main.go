package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/reelforge-backend/internal/bootstrap"
	"github.com/angelmondragon/reelforge-backend/internal/cron"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/migrate"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/redis"
)

const (
	sweepBatchSize          = 50
	outboxRetentionAttempts = 1
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.AutoMigrate(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	domain, err := bootstrap.NewDomain(context.Background(), cfg, dbClient, redisClient, prometheus.DefaultRegisterer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire generation services", err)
		os.Exit(1)
	}
	defer func() {
		if err := domain.Close(); err != nil {
			logg.Error(context.Background(), "error closing providers", err)
		}
	}()

	metricsCollector := metrics.NewCronMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	staleRuns, err := cron.NewStaleRunsJob(cron.StaleRunsJobParams{
		Logger:    logg,
		Sweeper:   domain.Pipeline,
		BatchSize: sweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale runs job", err)
		os.Exit(1)
	}
	renderTimeouts, err := cron.NewRenderTimeoutJob(cron.RenderTimeoutJobParams{
		Logger:    logg,
		Renders:   domain.Render,
		BatchSize: sweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create render timeout job", err)
		os.Exit(1)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Retention:   cfg.Outbox.Retention,
		MinAttempts: outboxRetentionAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(staleRuns, renderTimeouts, outboxRetention)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
