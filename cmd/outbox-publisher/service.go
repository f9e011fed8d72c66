package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	defaultRetryBase   = 2 * time.Second
	defaultRetryMax    = 5 * time.Minute
	pollBackoffMax     = 10 * time.Second
	pollJitter         = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchDue(tx *gorm.DB, now time.Time, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	ScheduleRetryTx(tx *gorm.DB, id uuid.UUID, cause error, at time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config     *config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Pinger     func(context.Context) error
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   eventResolver
	Publishers publisherFactory
	Metrics    *metrics.OutboxMetrics
	Clock      func() time.Time
}

// Service moves committed outbox rows onto their Pub/Sub topics.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pinger      func(context.Context) error
	repo        outboxRepository
	dlq         dlqRepository
	registry    eventResolver
	publishers  publisherFactory
	metrics     *metrics.OutboxMetrics
	now         func() time.Time
	batchSize   int
	maxAttempts int
	interval    time.Duration
	retryBase   time.Duration
	retryMax    time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("outbox config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Publishers == nil:
		return nil, errors.New("publisher factory is required")
	}

	cfg := params.Config
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		pinger:      params.Pinger,
		repo:        params.Repository,
		dlq:         params.DLQ,
		registry:    params.Registry,
		publishers:  params.Publishers,
		metrics:     params.Metrics,
		now:         clock,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		interval:    time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		retryBase:   durationOr(cfg.RetryBase, defaultRetryBase),
		retryMax:    durationOr(cfg.RetryMax, defaultRetryMax),
	}, nil
}

// Run polls until ctx ends. A full batch is followed immediately by the next
// one; failed batches back off exponentially up to pollBackoffMax.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	backoff := s.pollBackoff()
	for {
		n, err := s.processBatch(ctx)
		if ctx.Err() != nil {
			s.logg.Info(ctx, "outbox.stopped")
			return ctx.Err()
		}

		wait := s.interval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait, _ = backoff.Next()
		case n >= s.batchSize:
			backoff = s.pollBackoff()
			continue
		default:
			backoff = s.pollBackoff()
		}
		if err := sleep(ctx, wait); err != nil {
			s.logg.Info(ctx, "outbox.stopped")
			return err
		}
	}
}

func (s *Service) pollBackoff() retry.Backoff {
	b := retry.NewExponential(s.interval)
	b = retry.WithCappedDuration(pollBackoffMax, b)
	return retry.WithJitter(pollJitter, b)
}

func (s *Service) ready(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "outbox.database_unreachable", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if s.pinger != nil {
		if err := s.pinger(ctx); err != nil {
			s.logg.Error(ctx, "outbox.pubsub_unreachable", err)
			return fmt.Errorf("pubsub ping: %w", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
