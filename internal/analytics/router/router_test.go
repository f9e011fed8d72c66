package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/registry"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.Envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: uuid.NewString(),
		OccurredAt:  time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Payload:     raw,
	}
}

func TestRouterWritesGenerationRun(t *testing.T) {
	w := &fakeWriter{}
	r, err := NewRouter(w, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	started := time.Date(2026, 10, 1, 11, 59, 0, 0, time.UTC)
	event := payloads.GenerationFinishedEvent{
		RunID:               uuid.New(),
		VideoID:             uuid.New(),
		UserID:              uuid.New(),
		Status:              enums.RunStatusFailed,
		Error:               "character generation incomplete after 2 attempts: Bo",
		CreditsSpent:        5,
		CharactersTotal:     2,
		CharactersCompleted: 1,
		ScenesTotal:         1,
		StartedAt:           started,
		FinishedAt:          started.Add(90 * time.Second),
	}

	if err := r.Handle(context.Background(), envelopeFor(t, enums.EventGenerationFinished, event)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(w.runs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(w.runs))
	}
	row := w.runs[0]
	if row.RunID != event.RunID.String() || row.Status != "failed" {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.DurationMs != 90000 {
		t.Fatalf("expected 90000ms, got %d", row.DurationMs)
	}
	if row.Error == nil || *row.Error != event.Error {
		t.Fatalf("error not carried: %v", row.Error)
	}
	if row.CharactersCompleted != 1 || row.CreditsSpent != 5 {
		t.Fatalf("counts not carried: %+v", row)
	}
	if !row.Payload.Valid {
		t.Fatal("payload should be kept as json")
	}
}

func TestRouterWritesRenderEvent(t *testing.T) {
	w := &fakeWriter{}
	r, _ := NewRouter(w, testLogger(), nil)
	event := payloads.RenderCompletedEvent{
		VideoID:  uuid.New(),
		UserID:   uuid.New(),
		RenderID: "render-9",
		Status:   enums.RenderStatusSucceeded,
		VideoURL: "https://cdn.example.com/out.mp4",
	}

	if err := r.Handle(context.Background(), envelopeFor(t, enums.EventRenderCompleted, event)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(w.renders) != 1 || w.renders[0].RenderID != "render-9" || w.renders[0].Error != nil {
		t.Fatalf("unexpected render rows %+v", w.renders)
	}
}

func TestRouterRejectsUnsupportedEvent(t *testing.T) {
	r, _ := NewRouter(&fakeWriter{}, testLogger(), nil)
	err := r.Handle(context.Background(), envelopeFor(t, enums.EventGenerationRequested, map[string]any{}))
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported event error, got %v", err)
	}
}

func TestRouterRejectsEmptyAndMalformedPayload(t *testing.T) {
	r, _ := NewRouter(&fakeWriter{}, testLogger(), nil)
	env := types.Envelope{EventType: enums.EventGenerationFinished}
	if err := r.Handle(context.Background(), env); err == nil {
		t.Fatal("expected error for empty payload")
	}
	env.Payload = json.RawMessage(`{"run_id":42}`)
	if err := r.Handle(context.Background(), env); err == nil {
		t.Fatal("expected decode error")
	}
}

type recordingHandler struct{ called bool }

func (h *recordingHandler) Handle(context.Context, types.Envelope, any) error {
	h.called = true
	return nil
}

func TestRouterOverrides(t *testing.T) {
	w := &fakeWriter{}
	custom := &recordingHandler{}
	r, _ := NewRouter(w, testLogger(), map[enums.OutboxEventType]Handler{
		enums.EventRenderCompleted:     custom,
		enums.EventGenerationRequested: &recordingHandler{},
	})

	if err := r.Handle(context.Background(), envelopeFor(t, enums.EventRenderCompleted, payloads.RenderCompletedEvent{})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !custom.called || len(w.renders) != 0 {
		t.Fatal("override should replace the default handler")
	}
	if err := r.Handle(context.Background(), envelopeFor(t, enums.EventGenerationRequested, map[string]any{})); !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatal("overrides must not register new events")
	}
}

func TestDurationMs(t *testing.T) {
	now := time.Now()
	if durationMs(time.Time{}, now) != 0 || durationMs(now, now.Add(-time.Second)) != 0 {
		t.Fatal("expected zero for missing or inverted bounds")
	}
	if durationMs(now, now.Add(1500*time.Millisecond)) != 1500 {
		t.Fatal("expected 1500ms")
	}
}

func TestRouterRejectsUnusablePayloads(t *testing.T) {
	w := &fakeWriter{}
	r, _ := NewRouter(w, testLogger(), nil)

	missingRun := envelopeFor(t, enums.EventGenerationFinished, payloads.GenerationFinishedEvent{Status: enums.RunStatusSucceeded})
	if err := r.Handle(context.Background(), missingRun); err == nil {
		t.Fatal("expected finished event without run_id to fail")
	}

	future := envelopeFor(t, enums.EventRenderCompleted, payloads.RenderCompletedEvent{RenderID: "r-2"})
	future.Version = 2
	if err := r.Handle(context.Background(), future); !errors.Is(err, registry.ErrNotAccepted) {
		t.Fatalf("expected unknown version to be refused, got %v", err)
	}
	if len(w.runs) != 0 || len(w.renders) != 0 {
		t.Fatal("nothing should be written")
	}
}
