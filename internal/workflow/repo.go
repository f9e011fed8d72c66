// Package workflow persists workflow runs, their step checkpoints and the lease that
// keeps a run on a single worker.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

// Repository exposes run and step persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, run *models.WorkflowRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowRun, error)

	ClaimLease(ctx context.Context, runID uuid.UUID, owner string, ttl time.Duration) (*models.WorkflowRun, error)
	RenewLease(ctx context.Context, runID uuid.UUID, owner string, ttl time.Duration) error
	Finish(ctx context.Context, runID uuid.UUID, status enums.RunStatus, runErr *string) error
	AddCredits(ctx context.Context, runID uuid.UUID, amount int) error

	CompleteStep(ctx context.Context, runID uuid.UUID, name string) error
	CompletedSteps(ctx context.Context, runID uuid.UUID) (map[string]bool, error)

	ListStale(ctx context.Context, now, unclaimedBefore time.Time, limit int) ([]models.WorkflowRun, error)
	MarkResumed(ctx context.Context, runID uuid.UUID, expectedResumeCount int, at time.Time) (bool, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a workflow repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) Create(ctx context.Context, run *models.WorkflowRun) error {
	if run == nil {
		return errors.New("workflow run is required")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = enums.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now().UTC()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ClaimLease takes the run for owner when it is unleased, already owned by owner or
// the previous lease expired.
func (r *repository) ClaimLease(ctx context.Context, runID uuid.UUID, owner string, ttl time.Duration) (*models.WorkflowRun, error) {
	now := r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.WorkflowRun{}).
		Where("id = ? AND status = ?", runID, enums.RunStatusRunning).
		Where("lease_owner IS NULL OR lease_owner = ? OR lease_expires_at < ?", owner, now).
		UpdateColumns(map[string]any{
			"lease_owner":      owner,
			"lease_expires_at": now.Add(ttl),
			"updated_at":       now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	run, err := r.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 1 {
		return run, nil
	}
	if run.Status.IsTerminal() {
		return run, ErrRunFinished
	}
	return run, ErrLeaseHeld
}

func (r *repository) RenewLease(ctx context.Context, runID uuid.UUID, owner string, ttl time.Duration) error {
	now := r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.WorkflowRun{}).
		Where("id = ? AND status = ? AND lease_owner = ?", runID, enums.RunStatusRunning, owner).
		UpdateColumns(map[string]any{
			"lease_expires_at": now.Add(ttl),
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// Finish moves a running run to its terminal status and drops the lease.
func (r *repository) Finish(ctx context.Context, runID uuid.UUID, status enums.RunStatus, runErr *string) error {
	if !status.IsTerminal() {
		return errors.New("finish requires a terminal status")
	}
	now := r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.WorkflowRun{}).
		Where("id = ? AND status = ?", runID, enums.RunStatusRunning).
		UpdateColumns(map[string]any{
			"status":           status,
			"error":            runErr,
			"finished_at":      now,
			"lease_owner":      nil,
			"lease_expires_at": nil,
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, runID); err != nil {
			return err
		}
		return ErrRunFinished
	}
	return nil
}

func (r *repository) AddCredits(ctx context.Context, runID uuid.UUID, amount int) error {
	if amount == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.WorkflowRun{}).
		Where("id = ?", runID).
		UpdateColumn("credits_spent", gorm.Expr("credits_spent + ?", amount)).Error
}

// CompleteStep checkpoints name for the run. Completing a step twice is a no-op.
func (r *repository) CompleteStep(ctx context.Context, runID uuid.UUID, name string) error {
	step := models.WorkflowStep{
		ID:          uuid.New(),
		RunID:       runID,
		Name:        name,
		CompletedAt: r.now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "run_id"}, {Name: "name"}}, DoNothing: true}).
		Create(&step).Error
}

func (r *repository) CompletedSteps(ctx context.Context, runID uuid.UUID) (map[string]bool, error) {
	var names []string
	if err := r.db.WithContext(ctx).
		Model(&models.WorkflowStep{}).
		Where("run_id = ?", runID).
		Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[name] = true
	}
	return out, nil
}

// ListStale returns running runs whose lease expired, plus unleased runs that were
// started or last requeued before unclaimedBefore.
func (r *repository) ListStale(ctx context.Context, now, unclaimedBefore time.Time, limit int) ([]models.WorkflowRun, error) {
	var rows []models.WorkflowRun
	q := r.db.WithContext(ctx).
		Where("status = ?", enums.RunStatusRunning).
		Where("(lease_expires_at IS NOT NULL AND lease_expires_at < ?) OR (lease_owner IS NULL AND COALESCE(resumed_at, started_at) < ?)",
			now.UTC(), unclaimedBefore.UTC()).
		Order("started_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkResumed bumps resume_count, clears the lease and stamps resumed_at when the
// count still equals expectedResumeCount. A false result means another scheduler
// got there first.
func (r *repository) MarkResumed(ctx context.Context, runID uuid.UUID, expectedResumeCount int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WorkflowRun{}).
		Where("id = ? AND status = ? AND resume_count = ?", runID, enums.RunStatusRunning, expectedResumeCount).
		UpdateColumns(map[string]any{
			"resume_count":     gorm.Expr("resume_count + 1"),
			"lease_owner":      nil,
			"lease_expires_at": nil,
			"resumed_at":       at.UTC(),
			"updated_at":       r.now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
