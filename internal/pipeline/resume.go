package pipeline

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
)

const defaultMaxResumes = 3

// ResumeReport counts what one sweep over stale runs did.
type ResumeReport struct {
	Scanned   int
	Resumed   int
	Abandoned int
	Raced     int
}

// ResumeStale requeues runs whose worker went away. A run that already used its
// resumes is failed so the video leaves the running state.
func (o *Orchestrator) ResumeStale(ctx context.Context, limit int) (ResumeReport, error) {
	now := o.now().UTC()
	stale, err := o.runs.ListStale(ctx, now, now.Add(-o.cfg.RunLease), limit)
	if err != nil {
		return ResumeReport{}, err
	}

	maxResumes := o.cfg.MaxResumes
	if maxResumes <= 0 {
		maxResumes = defaultMaxResumes
	}

	report := ResumeReport{Scanned: len(stale)}
	for i := range stale {
		run := &stale[i]
		runCtx := ctx
		if o.logg != nil {
			runCtx = o.logg.WithRunID(ctx, run.ID.String())
		}

		if run.ResumeCount >= maxResumes {
			res := o.finish(runCtx, &execution{o: o, run: run},
				fmt.Errorf("run abandoned after %d resumes", run.ResumeCount))
			if res.Interrupted {
				return report, fmt.Errorf("abandon run %s: %s", run.ID, res.Error)
			}
			report.Abandoned++
			continue
		}

		resumed, err := o.requeue(runCtx, run, now)
		if err != nil {
			return report, err
		}
		if !resumed {
			report.Raced++
			continue
		}
		report.Resumed++
		o.info(runCtx, run.VideoID, "pipeline.run.resumed", map[string]any{
			"resume_count": run.ResumeCount + 1,
		})
	}
	return report, nil
}

// requeue hands the run back to the queue. The stamped resumed_at gives the next
// worker a full RunLease to claim it before the sweep considers it again.
func (o *Orchestrator) requeue(ctx context.Context, run *models.WorkflowRun, now time.Time) (bool, error) {
	var resumed bool
	err := o.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := o.runs.WithTx(tx).MarkResumed(ctx, run.ID, run.ResumeCount, now)
		if err != nil || !ok {
			return err
		}
		resumed = true
		return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGenerationResumed,
			AggregateType: enums.AggregateWorkflowRun,
			AggregateID:   run.ID,
			Actor:         &outbox.ActorRef{UserID: run.UserID, Source: eventSource},
			Data: payloads.GenerationRequestedEvent{
				RunID:       run.ID,
				VideoID:     run.VideoID,
				UserID:      run.UserID,
				ResumeCount: run.ResumeCount + 1,
			},
			Version:    1,
			OccurredAt: now,
		})
	})
	return resumed, err
}
