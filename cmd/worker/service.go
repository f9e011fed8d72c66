package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

const heartbeatInterval = 30 * time.Second

type pinger interface {
	Ping(context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	PubSub   pinger
	Storage  pinger
	Consumer runner
}

// Service checks dependencies once and then drives the generation consumer.
type Service struct {
	logg     *logger.Logger
	checks   []namedPinger
	consumer runner
}

type namedPinger struct {
	name string
	p    pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("generation consumer is required")
	}

	checks := []namedPinger{
		{name: "database", p: params.DB},
		{name: "redis", p: params.Redis},
		{name: "pubsub", p: params.PubSub},
	}
	if params.Storage != nil {
		checks = append(checks, namedPinger{name: "storage", p: params.Storage})
	}
	return &Service{logg: params.Logger, checks: checks, consumer: params.Consumer}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, c := range s.checks {
		if err := pingDependency(ctx, s.logg, c.name, c.p.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.consumer.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "generation consumer stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
			s.logg.Debug(ctx, "worker.heartbeat")
		}
	}
}
