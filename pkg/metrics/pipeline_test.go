package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetricsRecordsAssets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.ObserveAsset("scene_image", OutcomeSucceeded, 3*time.Second)
	m.ObserveAsset("scene_image", OutcomeFailed, time.Second)
	m.AddCredits("scene_video", 10)
	m.AddCredits("scene_video", 0)
	m.IncRun("succeeded")
	m.ObserveWave("characters", 42*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "reelforge_generation_credits_debited_total", "kind", "scene_video"); err != nil || got != 10 {
		t.Fatalf("expected 10 credits, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "reelforge_workflow_runs_total", "status", "succeeded"); err != nil || got != 1 {
		t.Fatalf("expected one run, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "reelforge_generation_asset_duration_seconds", "kind", "scene_image"); err != nil || got != 3 {
		t.Fatalf("only successes should be timed, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "reelforge_workflow_wave_duration_seconds", "wave", "characters"); err != nil || got != 42 {
		t.Fatalf("unexpected wave duration %f (%v)", got, err)
	}
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.ObserveAsset("x", OutcomeSucceeded, time.Second)
	m.AddCredits("x", 5)
	m.IncRun("failed")
	m.ObserveWave("scenes", time.Second)

	NewPipelineMetrics(nil).IncRun("failed")
}
