package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 7 * 24 * time.Hour
	outboxMinAttempts      = 1
	// maxRetentionBatches bounds one cycle; whatever is left waits for the next.
	maxRetentionBatches = 50
)

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Repository  outboxPurger
	Retention   time.Duration
	MinAttempts int
	BatchSize   int
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

// NewOutboxRetentionJob purges published outbox rows older than the retention
// window, one bounded DELETE per batch so the table is never locked for long.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		batch:       batchOrDefault(params.BatchSize),
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxPurger
	retention   time.Duration
	minAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for batches < maxRetentionBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.repo.DeletePublishedBefore(ctx, nil, cutoff, j.minAttempts, j.batch)
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		batches++
		total += n
		if n < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"batches":      batches,
		"rows_deleted": total,
		"backlog":      batches == maxRetentionBatches,
	}), "cron.outbox_retention.done")
	return nil
}
