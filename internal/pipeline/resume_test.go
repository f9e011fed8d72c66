package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

func (h *harness) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestResumeStaleRequeuesAbandonedLease(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	started, err := h.orch.Start(ctx, h.video.ID, h.userID)
	require.NoError(t, err)
	_, err = h.runs.ClaimLease(ctx, started.RunID, "worker-gone", -time.Minute)
	require.NoError(t, err)

	report, err := h.orch.ResumeStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ResumeReport{Scanned: 1, Resumed: 1}, report)
	assert.EqualValues(t, 1, h.events(t, enums.EventGenerationResumed))

	run, err := h.runs.FindByID(ctx, started.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ResumeCount)
	assert.Nil(t, run.LeaseOwner)

	again, err := h.orch.ResumeStale(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, again.Resumed, "a freshly requeued run is not stale")

	res := h.orch.Execute(ctx, started.RunID)
	assert.Equal(t, enums.RunStatusSucceeded, res.Status)
}

func TestResumeStaleAbandonsAfterMaxResumes(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	started, err := h.orch.Start(ctx, h.video.ID, h.userID)
	require.NoError(t, err)
	_, err = h.runs.ClaimLease(ctx, started.RunID, "worker-gone", -time.Minute)
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.WorkflowRun{}).
		Where("id = ?", started.RunID).Update("resume_count", defaultMaxResumes).Error)

	report, err := h.orch.ResumeStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Abandoned)
	assert.Zero(t, h.events(t, enums.EventGenerationResumed))
	assert.EqualValues(t, 1, h.finishedEvents(t))

	video := h.reload(t)
	assert.Equal(t, enums.RunStatusFailed, video.RunStatus)
	require.NotNil(t, video.RunError)
	assert.Equal(t, "run abandoned after 3 resumes", *video.RunError)
	assert.Empty(t, h.assets.calls)
}

func TestResumeStaleIgnoresLiveRuns(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	started, err := h.orch.Start(ctx, h.video.ID, h.userID)
	require.NoError(t, err)
	_, err = h.runs.ClaimLease(ctx, started.RunID, "worker-live", time.Hour)
	require.NoError(t, err)

	report, err := h.orch.ResumeStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ResumeReport{}, report)
}

func TestResumeStaleGivesRequeuedRunAFullLease(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	started, err := h.orch.Start(ctx, h.video.ID, h.userID)
	require.NoError(t, err)
	_, err = h.runs.ClaimLease(ctx, started.RunID, "worker-gone", -time.Minute)
	require.NoError(t, err)

	clock := time.Now().UTC()
	h.orch.now = func() time.Time { return clock }

	report, err := h.orch.ResumeStale(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, report.Resumed)

	// sweeps inside the one minute lease leave the requeued run alone
	for tick := 1; tick <= 5; tick++ {
		clock = clock.Add(10 * time.Second)
		report, err = h.orch.ResumeStale(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, ResumeReport{}, report, "tick %d", tick)
	}
	run, err := h.runs.FindByID(ctx, started.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ResumeCount)
	assert.Equal(t, enums.RunStatusRunning, run.Status)
	assert.EqualValues(t, 1, h.events(t, enums.EventGenerationResumed))

	// nobody claimed it for a full lease, so it is requeued once more
	clock = clock.Add(20 * time.Second)
	report, err = h.orch.ResumeStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ResumeReport{Scanned: 1, Resumed: 1}, report)

	// once a worker holds the lease the sweep stays away however far the clock moves
	_, err = h.runs.ClaimLease(ctx, started.RunID, "worker-b", time.Hour)
	require.NoError(t, err)
	clock = clock.Add(5 * time.Minute)
	report, err = h.orch.ResumeStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ResumeReport{}, report)

	run, err = h.runs.FindByID(ctx, started.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.ResumeCount)
	assert.EqualValues(t, 2, h.events(t, enums.EventGenerationResumed))
	assert.Zero(t, h.finishedEvents(t))
}
