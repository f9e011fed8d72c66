// Package pipeline drives a video through its three generation waves as a durable,
// resumable workflow run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/internal/generation"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/internal/workflow"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
)

const eventSource = "pipeline"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type creditChecker interface {
	Check(ctx context.Context, userID uuid.UUID, cost int) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Params wires the orchestrator collaborators.
type Params struct {
	DB      txRunner
	Videos  videos.Repository
	Runs    workflow.Repository
	Credits creditChecker
	Assets  generation.Assets
	Outbox  eventEmitter
	Policy  RetryPolicy
	Config  config.PipelineConfig
	// Owner identifies this worker on the run lease.
	Owner   string
	Metrics *metrics.PipelineMetrics
	Logger  *logger.Logger
}

type Orchestrator struct {
	db      txRunner
	videos  videos.Repository
	runs    workflow.Repository
	credits creditChecker
	assets  generation.Assets
	outbox  eventEmitter
	policy  RetryPolicy
	cfg     config.PipelineConfig
	owner   string
	metrics *metrics.PipelineMetrics
	logg    *logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	// renewEvery is the lease heartbeat while a wave is in flight.
	renewEvery time.Duration
}

func NewOrchestrator(p Params) (*Orchestrator, error) {
	switch {
	case p.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Videos == nil:
		return nil, fmt.Errorf("video repository required")
	case p.Runs == nil:
		return nil, fmt.Errorf("workflow repository required")
	case p.Credits == nil:
		return nil, fmt.Errorf("credits service required")
	case p.Assets == nil:
		return nil, fmt.Errorf("asset generator required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox service required")
	}
	cfg := p.Config
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.RunLease <= 0 {
		cfg.RunLease = 15 * time.Minute
	}
	owner := p.Owner
	if owner == "" {
		owner = "worker-" + uuid.NewString()
	}
	return &Orchestrator{
		db:      p.DB,
		videos:  p.Videos,
		runs:    p.Runs,
		credits: p.Credits,
		assets:  p.Assets,
		outbox:  p.Outbox,
		policy:  p.Policy,
		cfg:     cfg,
		owner:   owner,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     time.Now,
		sleep:   sleepContext,

		renewEvery: cfg.RunLease / 3,
	}, nil
}

// StartResult reports what Start did. Skipped means nothing was left to generate.
type StartResult struct {
	RunID    uuid.UUID `json:"run_id"`
	Skipped  bool      `json:"skipped"`
	Estimate Estimate  `json:"estimate"`
}

// Result is the outcome of executing a run.
type Result struct {
	RunID        uuid.UUID       `json:"run_id"`
	VideoID      uuid.UUID       `json:"video_id"`
	Status       enums.RunStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	CreditsSpent int             `json:"credits_spent"`
	// Busy is set when another worker holds the run lease.
	Busy bool `json:"busy,omitempty"`
	// Interrupted is set when the run stopped before a terminal state and is left
	// for redelivery or the stale run sweep.
	Interrupted bool `json:"interrupted,omitempty"`
	Skipped     bool `json:"skipped,omitempty"`
}

// Start admits a run for the video and queues it for a worker.
func (o *Orchestrator) Start(ctx context.Context, videoID, userID uuid.UUID) (StartResult, error) {
	if userID == uuid.Nil {
		return StartResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	video, err := o.videos.FindForUser(ctx, videoID, userID)
	if err != nil {
		return StartResult{}, err
	}
	if video.IsRunning() {
		return StartResult{}, videos.ErrVideoAlreadyRunning
	}

	est := EstimateCost(video)
	if est.Total == 0 {
		o.info(ctx, video.ID, "pipeline.run.skipped", nil)
		return StartResult{Skipped: true, Estimate: est}, nil
	}
	if err := o.credits.Check(ctx, userID, est.Total); err != nil {
		o.metrics.IncRun(metrics.OutcomeRejected)
		return StartResult{}, err
	}

	run := &models.WorkflowRun{
		ID:        uuid.New(),
		VideoID:   video.ID,
		UserID:    userID,
		Status:    enums.RunStatusRunning,
		StartedAt: o.now().UTC(),
	}
	err = o.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := o.videos.WithTx(tx).StartRun(ctx, video.ID, run.ID); err != nil {
			return err
		}
		if err := o.runs.WithTx(tx).Create(ctx, run); err != nil {
			return err
		}
		return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGenerationRequested,
			AggregateType: enums.AggregateWorkflowRun,
			AggregateID:   run.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Source: eventSource},
			Data: payloads.GenerationRequestedEvent{
				RunID:   run.ID,
				VideoID: video.ID,
				UserID:  userID,
			},
			Version:    1,
			OccurredAt: run.StartedAt,
		})
	})
	if err != nil {
		return StartResult{}, err
	}

	o.metrics.IncRun(string(enums.RunStatusRunning))
	o.info(ctx, video.ID, "pipeline.run.started", map[string]any{
		"run_id":   run.ID.String(),
		"estimate": est.Total,
	})
	return StartResult{RunID: run.ID, Estimate: est}, nil
}

// Run starts and executes a run in process.
func (o *Orchestrator) Run(ctx context.Context, videoID, userID uuid.UUID) (Result, error) {
	started, err := o.Start(ctx, videoID, userID)
	if err != nil {
		return Result{}, err
	}
	if started.Skipped {
		return Result{VideoID: videoID, Skipped: true}, nil
	}
	return o.Execute(ctx, started.RunID), nil
}

// Execute drives a run to a terminal state. Business failures end the run as failed
// and are reported through Result, never as an error.
func (o *Orchestrator) Execute(ctx context.Context, runID uuid.UUID) Result {
	if o.logg != nil {
		ctx = o.logg.WithRunID(ctx, runID.String())
	}

	run, err := o.runs.FindByID(ctx, runID)
	if errors.Is(err, workflow.ErrRunNotFound) {
		o.warn(ctx, "pipeline.run.not_found")
		return Result{RunID: runID, Error: err.Error()}
	}
	if err != nil {
		o.logError(ctx, "pipeline.run.load_failed", err)
		return Result{RunID: runID, Interrupted: true, Error: err.Error()}
	}
	if o.logg != nil {
		ctx = o.logg.WithVideoID(ctx, run.VideoID.String())
	}
	if run.Status.IsTerminal() {
		return resultOf(run)
	}

	run, err = o.runs.ClaimLease(ctx, runID, o.owner, o.cfg.RunLease)
	switch {
	case errors.Is(err, workflow.ErrRunFinished):
		return resultOf(run)
	case errors.Is(err, workflow.ErrLeaseHeld):
		o.info(ctx, run.VideoID, "pipeline.run.busy", map[string]any{"lease_owner": deref(run.LeaseOwner)})
		return Result{RunID: run.ID, VideoID: run.VideoID, Status: run.Status, Busy: true}
	case err != nil:
		o.logError(ctx, "pipeline.run.claim_failed", err)
		return Result{RunID: runID, Interrupted: true, Error: err.Error()}
	}

	ex := &execution{o: o, run: run}
	runErr := ex.safeDrive(ctx)
	if runErr != nil && (ctx.Err() != nil || errors.Is(runErr, errLeaseLost)) {
		o.warn(o.withError(ctx, runErr), "pipeline.run.interrupted")
		return Result{
			RunID:        run.ID,
			VideoID:      run.VideoID,
			Status:       enums.RunStatusRunning,
			CreditsSpent: ex.creditsSpent(),
			Interrupted:  true,
		}
	}
	return o.finish(context.WithoutCancel(ctx), ex, runErr)
}

func (o *Orchestrator) finish(ctx context.Context, ex *execution, runErr error) Result {
	run := ex.run
	status := enums.RunStatusSucceeded
	var message *string
	if runErr != nil {
		status = enums.RunStatusFailed
		msg := describe(runErr)
		message = &msg
	}

	video := ex.video
	if fresh, err := o.videos.FindByID(ctx, run.VideoID); err == nil {
		video = fresh
	}
	finishedAt := o.now().UTC()
	event := finishedEvent(run, video, status, message, ex.creditsSpent(), finishedAt)

	persist := func(ctx context.Context) error {
		err := o.db.WithTx(ctx, func(tx *gorm.DB) error {
			if err := o.runs.WithTx(tx).Finish(ctx, run.ID, status, message); err != nil {
				return err
			}
			err := o.videos.WithTx(tx).FinishRun(ctx, run.VideoID, run.ID, status, message)
			if err != nil && !errors.Is(err, videos.ErrVideoNotRunning) {
				return err
			}
			return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventGenerationFinished,
				AggregateType: enums.AggregateWorkflowRun,
				AggregateID:   run.ID,
				Actor:         &outbox.ActorRef{UserID: run.UserID, Source: eventSource},
				Data:          event,
				Version:       1,
				OccurredAt:    finishedAt,
			})
		})
		if err == nil || errors.Is(err, workflow.ErrRunFinished) || errors.Is(err, workflow.ErrRunNotFound) {
			return err
		}
		return retry.RetryableError(err)
	}
	backoff := retry.WithMaxRetries(2, retry.NewConstant(250*time.Millisecond))
	if err := retry.Do(ctx, backoff, persist); err != nil {
		if errors.Is(err, workflow.ErrRunFinished) {
			stored, findErr := o.runs.FindByID(ctx, run.ID)
			if findErr == nil {
				return resultOf(stored)
			}
		}
		o.logError(ctx, "pipeline.run.finish_failed", err)
		return Result{RunID: run.ID, VideoID: run.VideoID, Status: enums.RunStatusRunning, Interrupted: true, Error: err.Error()}
	}

	o.metrics.IncRun(string(status))
	fields := map[string]any{
		"status":        status,
		"credits_spent": event.CreditsSpent,
		"duration_ms":   finishedAt.Sub(run.StartedAt).Milliseconds(),
	}
	if message != nil {
		fields["run_error"] = *message
	}
	o.info(ctx, run.VideoID, "pipeline.run.finished", fields)

	res := Result{RunID: run.ID, VideoID: run.VideoID, Status: status, CreditsSpent: event.CreditsSpent}
	if message != nil {
		res.Error = *message
	}
	return res
}

func finishedEvent(run *models.WorkflowRun, video *models.Video, status enums.RunStatus, message *string, spent int, finishedAt time.Time) payloads.GenerationFinishedEvent {
	event := payloads.GenerationFinishedEvent{
		RunID:        run.ID,
		VideoID:      run.VideoID,
		UserID:       run.UserID,
		Status:       status,
		CreditsSpent: spent,
		ResumeCount:  run.ResumeCount,
		StartedAt:    run.StartedAt,
		FinishedAt:   finishedAt,
	}
	if message != nil {
		event.Error = *message
	}
	if video != nil {
		event.CharactersTotal = len(video.Characters)
		for _, c := range video.Characters {
			if c.HasImage() {
				event.CharactersCompleted++
			}
		}
		event.ScenesTotal = len(video.Scenes)
		for _, s := range video.Scenes {
			if sceneComplete(s) {
				event.ScenesCompleted++
			}
		}
	}
	return event
}

func sceneComplete(s models.VideoScene) bool {
	return s.HasImage() && s.HasClip() && !s.NeedsAudio()
}

func resultOf(run *models.WorkflowRun) Result {
	if run == nil {
		return Result{}
	}
	res := Result{
		RunID:        run.ID,
		VideoID:      run.VideoID,
		Status:       run.Status,
		CreditsSpent: run.CreditsSpent,
	}
	if run.Error != nil {
		res.Error = *run.Error
	}
	return res
}

// describe renders an error for run_error without the code prefix.
func describe(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (o *Orchestrator) info(ctx context.Context, videoID uuid.UUID, msg string, fields map[string]any) {
	if o.logg == nil {
		return
	}
	logCtx := o.logg.WithVideoID(ctx, videoID.String())
	if len(fields) > 0 {
		logCtx = o.logg.WithFields(logCtx, fields)
	}
	o.logg.Info(logCtx, msg)
}

func (o *Orchestrator) warn(ctx context.Context, msg string) {
	if o.logg != nil {
		o.logg.Warn(ctx, msg)
	}
}

func (o *Orchestrator) logError(ctx context.Context, msg string, err error) {
	if o.logg != nil {
		o.logg.Error(ctx, msg, err)
	}
}

func (o *Orchestrator) withError(ctx context.Context, err error) context.Context {
	if o.logg == nil || err == nil {
		return ctx
	}
	return o.logg.WithField(ctx, "error", err.Error())
}
