package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reelforge-backend/internal/workflow"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

type countingRuns struct {
	workflow.Repository
	renewals atomic.Int32
}

func (c *countingRuns) RenewLease(ctx context.Context, runID uuid.UUID, owner string, ttl time.Duration) error {
	c.renewals.Add(1)
	return c.Repository.RenewLease(ctx, runID, owner, ttl)
}

func TestWaveRenewsLeaseWhileClipsRun(t *testing.T) {
	h := newHarness(t, 100)
	runs := &countingRuns{Repository: h.runs}
	h.orch.runs = runs
	h.orch.renewEvery = 5 * time.Millisecond

	var duringClips atomic.Int32
	h.assets.onCall = func(call string) {
		if strings.HasPrefix(call, "scene-video:") {
			before := runs.renewals.Load()
			time.Sleep(60 * time.Millisecond)
			duringClips.Store(runs.renewals.Load() - before)
		}
	}

	res, err := h.orch.Run(context.Background(), h.video.ID, h.userID)
	require.NoError(t, err)
	assert.Equal(t, enums.RunStatusSucceeded, res.Status)
	assert.GreaterOrEqual(t, duringClips.Load(), int32(2), "lease should be renewed while the clip call is in flight")
}

func TestWaveStopsWhenLeaseIsTaken(t *testing.T) {
	h := newHarness(t, 100)
	h.orch.renewEvery = 5 * time.Millisecond

	started, err := h.orch.Start(context.Background(), h.video.ID, h.userID)
	require.NoError(t, err)

	h.assets.onCall = func(call string) {
		if !strings.HasPrefix(call, "scene-video:") {
			return
		}
		assert.NoError(t, h.conn.Model(&models.WorkflowRun{}).
			Where("id = ?", started.RunID).
			Updates(map[string]any{"lease_owner": "worker-other", "lease_expires_at": time.Now().Add(time.Hour)}).Error)
		time.Sleep(30 * time.Millisecond)
	}

	res := h.orch.Execute(context.Background(), started.RunID)
	assert.True(t, res.Interrupted)
	assert.Equal(t, enums.RunStatusRunning, res.Status)
	assert.Zero(t, h.finishedEvents(t))

	steps, err := h.runs.CompletedSteps(context.Background(), started.RunID)
	require.NoError(t, err)
	assert.False(t, steps[StepSceneVideos], "the new owner redoes the clip step")
}
