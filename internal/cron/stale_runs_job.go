package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/reelforge-backend/internal/pipeline"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

type staleRunSweeper interface {
	ResumeStale(ctx context.Context, limit int) (pipeline.ResumeReport, error)
}

type StaleRunsJobParams struct {
	Logger    *logger.Logger
	Sweeper   staleRunSweeper
	BatchSize int
}

// NewStaleRunsJob requeues workflow runs whose worker stopped renewing the lease.
func NewStaleRunsJob(params StaleRunsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("stale run sweeper required")
	}
	return &staleRunsJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		batch:   batchOrDefault(params.BatchSize),
	}, nil
}

type staleRunsJob struct {
	logg    *logger.Logger
	sweeper staleRunSweeper
	batch   int
}

func (j *staleRunsJob) Name() string { return "workflow-stale-runs" }

func (j *staleRunsJob) Run(ctx context.Context) error {
	report, err := j.sweeper.ResumeStale(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   report.Scanned,
		"resumed":   report.Resumed,
		"abandoned": report.Abandoned,
		"raced":     report.Raced,
	})
	if err != nil {
		return fmt.Errorf("resume stale runs: %w", err)
	}
	if report.Scanned > 0 {
		j.logg.Info(logCtx, "cron.stale_runs.swept")
	}
	return nil
}
