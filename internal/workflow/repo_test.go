package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reelforge-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

func newRun(t *testing.T, repo Repository) *models.WorkflowRun {
	t.Helper()
	run := &models.WorkflowRun{VideoID: uuid.New(), UserID: uuid.New()}
	require.NoError(t, repo.Create(context.Background(), run))
	return run
}

func TestClaimLease(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn).(*repository)
	ctx := context.Background()
	run := newRun(t, repo)

	claimed, err := repo.ClaimLease(ctx, run.ID, "worker-a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed.LeaseOwner)
	assert.Equal(t, "worker-a", *claimed.LeaseOwner)

	_, err = repo.ClaimLease(ctx, run.ID, "worker-a", time.Minute)
	require.NoError(t, err, "owner may reclaim its own lease")

	_, err = repo.ClaimLease(ctx, run.ID, "worker-b", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, repo.RenewLease(ctx, run.ID, "worker-a", time.Minute))
	assert.ErrorIs(t, repo.RenewLease(ctx, run.ID, "worker-b", time.Minute), ErrLeaseHeld)

	repo.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	claimed, err = repo.ClaimLease(ctx, run.ID, "worker-b", time.Minute)
	require.NoError(t, err, "expired lease is up for grabs")
	assert.Equal(t, "worker-b", *claimed.LeaseOwner)

	_, err = repo.ClaimLease(ctx, uuid.New(), "worker-a", time.Minute)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFinishIsTerminal(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	run := newRun(t, repo)

	msg := "canceled"
	require.NoError(t, repo.Finish(ctx, run.ID, enums.RunStatusFailed, &msg))
	assert.ErrorIs(t, repo.Finish(ctx, run.ID, enums.RunStatusSucceeded, nil), ErrRunFinished)
	assert.Error(t, repo.Finish(ctx, run.ID, enums.RunStatusRunning, nil))

	stored, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, "canceled", *stored.Error)
	assert.NotNil(t, stored.FinishedAt)
	assert.Nil(t, stored.LeaseOwner)

	_, err = repo.ClaimLease(ctx, run.ID, "worker-a", time.Minute)
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestStepsAndCredits(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	run := newRun(t, repo)

	require.NoError(t, repo.CompleteStep(ctx, run.ID, "characters.attempt.1"))
	require.NoError(t, repo.CompleteStep(ctx, run.ID, "characters.attempt.1"))
	require.NoError(t, repo.CompleteStep(ctx, run.ID, "scenes"))

	steps, err := repo.CompletedSteps(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"characters.attempt.1": true, "scenes": true}, steps)
	var rows int64
	require.NoError(t, conn.Model(&models.WorkflowStep{}).Where("run_id = ?", run.ID).Count(&rows).Error)
	assert.EqualValues(t, 2, rows)

	require.NoError(t, repo.AddCredits(ctx, run.ID, 5))
	require.NoError(t, repo.AddCredits(ctx, run.ID, 10))
	stored, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, stored.CreditsSpent)
}

func TestListStaleAndMarkResumed(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn).(*repository)
	ctx := context.Background()

	leased := newRun(t, repo)
	_, err := repo.ClaimLease(ctx, leased.ID, "worker-a", time.Minute)
	require.NoError(t, err)
	fresh := newRun(t, repo)
	done := newRun(t, repo)
	require.NoError(t, repo.Finish(ctx, done.ID, enums.RunStatusSucceeded, nil))

	stale, err := repo.ListStale(ctx, time.Now(), time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	later := time.Now().Add(2 * time.Hour)
	stale, err = repo.ListStale(ctx, later, later, 10)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, run := range stale {
		ids = append(ids, run.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{leased.ID, fresh.ID}, ids)

	ok, err := repo.MarkResumed(ctx, leased.ID, 0, later)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkResumed(ctx, leased.ID, 0, later)
	require.NoError(t, err)
	assert.False(t, ok, "a stale resume count loses")

	stored, err := repo.FindByID(ctx, leased.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ResumeCount)
	assert.Nil(t, stored.LeaseOwner)
	require.NotNil(t, stored.ResumedAt)
	assert.WithinDuration(t, later, *stored.ResumedAt, time.Second)
}

func TestListStaleMeasuresUnclaimedFromResume(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	run := newRun(t, repo)
	resumedAt := time.Now().Add(time.Hour)
	ok, err := repo.MarkResumed(ctx, run.ID, 0, resumedAt)
	require.NoError(t, err)
	require.True(t, ok)

	stale, err := repo.ListStale(ctx, resumedAt.Add(30*time.Second), resumedAt.Add(-30*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "started_at is old but the run was requeued recently")

	stale, err = repo.ListStale(ctx, resumedAt.Add(2*time.Minute), resumedAt.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, run.ID, stale[0].ID)
}
