package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/router"
	"github.com/angelmondragon/reelforge-backend/internal/analytics/worker"
	"github.com/angelmondragon/reelforge-backend/internal/analytics/writer"
	"github.com/angelmondragon/reelforge-backend/pkg/bigquery"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/reelforge-backend/pkg/pubsub"
	"github.com/angelmondragon/reelforge-backend/pkg/redis"
)

const (
	serviceKind  = "analytics-worker"
	flushTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()

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
		logg.Error(ctx, "analytics worker failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

// run owns every client so deferred closes happen on both exit paths.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeQuietly(ctx, logg, "pubsub", pubsubClient)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer closeQuietly(ctx, logg, "bigquery", bqClient)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}
	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	sink, err := writer.New(bqClient, writer.Config{
		GenerationRunsTable: cfg.BigQuery.GenerationRunsTable,
		RenderEventsTable:   cfg.BigQuery.RenderEventsTable,
	})
	if err != nil {
		return err
	}
	routes, err := router.NewRouter(sink, logg, nil)
	if err != nil {
		return err
	}
	service, err := worker.NewService(subscription, routes, manager, logg)
	if err != nil {
		return err
	}

	logg.Info(ctx, "analytics worker ready")
	runErr := service.Run(ctx)

	// rows still buffered when the subscription stops are written before exit
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := sink.Flush(flushCtx); err != nil {
		logg.Error(ctx, "analytics writer flush failed", err)
	}
	return runErr
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
