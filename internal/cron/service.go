package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronMetrics
	Interval time.Duration
	Clock    func() time.Time
}

// Service runs every registered job once per interval while holding the
// cron lock. The first cycle starts immediately.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		now:      params.Clock,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "jobs", s.registry.Names())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycleReport lists what a cycle did; skipped means another replica held the lock.
type cycleReport struct {
	skipped bool
	ran     int
	failed  []string
}

func (s *Service) runCycle(ctx context.Context) (cycleReport, error) {
	var report cycleReport
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		report.skipped = true
		s.metrics.ObserveSkippedCycle()
		s.logg.Debug(ctx, "cron.cycle.locked_elsewhere")
		return report, nil
	}
	defer s.release(ctx)

	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.ran++
		if err := s.runJob(ctx, job); err != nil {
			report.failed = append(report.failed, job.Name())
		}
	}
	if len(report.failed) > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"ran":    report.ran,
			"failed": report.failed,
		}), "cron.cycle.partial")
	}
	return report, nil
}

func (s *Service) release(ctx context.Context) {
	err := s.lock.Release(context.WithoutCancel(ctx))
	switch {
	case errors.Is(err, ErrLockLost):
		// cycle outlived the lease; the next one may overlap another replica
		s.logg.Warn(s.logg.WithField(ctx, "interval", s.interval.String()), "cron.lock.expired_during_cycle")
	case err != nil:
		s.logg.Error(ctx, "cron.lock.release_failed", err)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := s.now()
	err := safeRun(jobCtx, job)
	end := s.now()
	s.metrics.ObserveJob(job.Name(), end.Sub(start), end, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", end.Sub(start).Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.failed", err)
		return err
	}
	s.logg.Debug(jobCtx, "cron.job.completed")
	return nil
}

// safeRun keeps one panicking job from taking down the cycle.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
