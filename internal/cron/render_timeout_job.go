package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

type renderExpirer interface {
	ExpirePending(ctx context.Context, limit int) (int, error)
}

type RenderTimeoutJobParams struct {
	Logger    *logger.Logger
	Renders   renderExpirer
	BatchSize int
}

// NewRenderTimeoutJob fails renders the renderer never called back about.
func NewRenderTimeoutJob(params RenderTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Renders == nil {
		return nil, fmt.Errorf("render service required")
	}
	return &renderTimeoutJob{
		logg:    params.Logger,
		renders: params.Renders,
		batch:   batchOrDefault(params.BatchSize),
	}, nil
}

type renderTimeoutJob struct {
	logg    *logger.Logger
	renders renderExpirer
	batch   int
}

func (j *renderTimeoutJob) Name() string { return "render-timeouts" }

func (j *renderTimeoutJob) Run(ctx context.Context) error {
	expired, err := j.renders.ExpirePending(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("expire renders: %w", err)
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "cron.render_timeouts.expired")
	}
	return nil
}
