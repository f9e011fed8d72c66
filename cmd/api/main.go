package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/reelforge-backend/api/routes"
	"github.com/angelmondragon/reelforge-backend/internal/analytics"
	"github.com/angelmondragon/reelforge-backend/internal/bootstrap"
	"github.com/angelmondragon/reelforge-backend/pkg/bigquery"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db"
	"github.com/angelmondragon/reelforge-backend/pkg/instance"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/migrate"
	"github.com/angelmondragon/reelforge-backend/pkg/redis"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	bigqueryClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := bigqueryClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
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

	analyticsService, err := analytics.NewService(bigqueryClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
		os.Exit(1)
	}

	deps := routes.Dependencies{
		DB:         dbClient,
		Cache:      redisClient,
		Warehouse:  bigqueryClient,
		Credits:    domain.Credits,
		Blueprints: domain.Blueprints,
		Videos:     domain.Videos,
		Pipeline:   domain.Pipeline,
		Assets:     domain.Assets,
		Render:     domain.Render,
		Analytics:  analyticsService,
		Metrics:    promhttp.Handler(),
	}
	if pinger, ok := domain.Blob.(storage.Pinger); ok {
		deps.Storage = pinger
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"storage":  cfg.Storage.NormalizedDriver(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
	logg.Info(ctx, "api server shutting down gracefully")
}
