package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{GenerationTopic: "generation-topic", AnalyticsTopic: "analytics-topic"})
	require.NoError(t, err)
	return reg
}

func envelopeOf(t *testing.T, version int, data any) json.RawMessage {
	t.Helper()
	raw, ok := data.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	out, err := json.Marshal(outbox.PayloadEnvelope{Version: version, EventID: uuid.NewString(), OccurredAt: time.Now().UTC(), Data: raw})
	require.NoError(t, err)
	return out
}

func row(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, payload json.RawMessage) models.OutboxEvent {
	return models.OutboxEvent{ID: uuid.New(), EventType: eventType, AggregateType: aggregate, AggregateID: uuid.New(), Payload: payload}
}

func TestResolveRoutesEveryEventToItsTopic(t *testing.T) {
	reg := testRegistry(t)
	runID := uuid.New()

	cases := []struct {
		event     models.OutboxEvent
		topic     string
		checkBody func(t *testing.T, payload any)
	}{
		{
			event: row(enums.EventGenerationRequested, enums.AggregateWorkflowRun, envelopeOf(t, 1, payloads.GenerationRequestedEvent{RunID: runID})),
			topic: "generation-topic",
			checkBody: func(t *testing.T, payload any) {
				assert.Equal(t, runID, payload.(*payloads.GenerationRequestedEvent).RunID)
			},
		},
		{
			event: row(enums.EventGenerationResumed, enums.AggregateWorkflowRun, envelopeOf(t, 1, payloads.GenerationRequestedEvent{RunID: runID, ResumeCount: 2})),
			topic: "generation-topic",
			checkBody: func(t *testing.T, payload any) {
				assert.Equal(t, 2, payload.(*payloads.GenerationRequestedEvent).ResumeCount)
			},
		},
		{
			event: row(enums.EventGenerationFinished, enums.AggregateWorkflowRun, envelopeOf(t, 0, payloads.GenerationFinishedEvent{RunID: runID, ScenesTotal: 4})),
			topic: "analytics-topic",
			checkBody: func(t *testing.T, payload any) {
				assert.Equal(t, 4, payload.(*payloads.GenerationFinishedEvent).ScenesTotal)
			},
		},
		{
			event: row(enums.EventRenderCompleted, enums.AggregateVideo, envelopeOf(t, 1, payloads.RenderCompletedEvent{RenderID: "r-9", Status: enums.RenderStatusSucceeded})),
			topic: "analytics-topic",
			checkBody: func(t *testing.T, payload any) {
				assert.Equal(t, "r-9", payload.(*payloads.RenderCompletedEvent).RenderID)
			},
		},
	}
	for _, tc := range cases {
		t.Run(string(tc.event.EventType), func(t *testing.T) {
			resolved, err := reg.Resolve(tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.topic, resolved.Route.Topic)
			assert.Equal(t, tc.event.EventType, resolved.Route.EventType)
			assert.NotEmpty(t, resolved.Envelope.EventID)
			tc.checkBody(t, resolved.Payload)
		})
	}
}

func TestResolveRejectsRowsThatCannotSucceed(t *testing.T) {
	reg := testRegistry(t)
	okRun := envelopeOf(t, 1, payloads.GenerationRequestedEvent{RunID: uuid.New()})
	orphan := row(enums.EventGenerationRequested, enums.AggregateWorkflowRun, okRun)
	orphan.AggregateID = uuid.Nil

	cases := map[string]models.OutboxEvent{
		"unknown type":       row("video_deleted", enums.AggregateVideo, okRun),
		"wrong aggregate":    row(enums.EventGenerationFinished, enums.AggregateVideo, envelopeOf(t, 1, payloads.GenerationFinishedEvent{RunID: uuid.New()})),
		"missing aggregate":  orphan,
		"null data":          row(enums.EventGenerationRequested, enums.AggregateWorkflowRun, envelopeOf(t, 1, json.RawMessage("null"))),
		"not json":           row(enums.EventGenerationRequested, enums.AggregateWorkflowRun, json.RawMessage("{")),
		"run_id missing":     row(enums.EventGenerationRequested, enums.AggregateWorkflowRun, envelopeOf(t, 1, payloads.GenerationRequestedEvent{})),
		"render_id missing":  row(enums.EventRenderCompleted, enums.AggregateVideo, envelopeOf(t, 1, payloads.RenderCompletedEvent{Status: enums.RenderStatusFailed})),
		"future version":     row(enums.EventGenerationRequested, enums.AggregateWorkflowRun, envelopeOf(t, 2, payloads.GenerationRequestedEvent{RunID: uuid.New()})),
		"payload wrong type": row(enums.EventGenerationFinished, enums.AggregateWorkflowRun, envelopeOf(t, 1, json.RawMessage(`{"run_id":42}`))),
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var terminal NonRetryableError
			require.True(t, errors.As(err, &terminal), "expected non-retryable, got %v", err)
		})
	}
}

func TestResolveFutureVersionIsNotAccepted(t *testing.T) {
	reg := testRegistry(t)
	_, err := reg.Resolve(row(enums.EventGenerationRequested, enums.AggregateWorkflowRun, envelopeOf(t, 2, payloads.GenerationRequestedEvent{RunID: uuid.New()})))
	assert.ErrorIs(t, err, ErrNotAccepted)
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	for _, cfg := range []config.PubSubConfig{
		{AnalyticsTopic: "a"},
		{GenerationTopic: "g", AnalyticsTopic: "  "},
	} {
		_, err := NewEventRegistry(cfg)
		assert.Error(t, err)
	}
}

func TestNonRetryableErrorUnwraps(t *testing.T) {
	cause := errors.New("schema drift")
	err := error(NewNonRetryableError(cause))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "schema drift", err.Error())
	assert.Equal(t, "non-retryable error", NonRetryableError{}.Error())
}
