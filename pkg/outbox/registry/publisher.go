package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
)

// Route says which topic an event type is published to and which aggregate
// is allowed to emit it.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation, with its typed payload.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// NonRetryableError marks a failure that no amount of retrying will fix; the
// publisher dead-letters the row instead.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// EventRegistry is the publisher's view of every event the outbox may hold.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]Route
	decoders *Decoders
}

// NewEventRegistry sends generation work to the generation topic and run or
// render outcomes to the analytics topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	generation := strings.TrimSpace(cfg.GenerationTopic)
	analytics := strings.TrimSpace(cfg.AnalyticsTopic)
	if generation == "" {
		return nil, errors.New("generation topic is required")
	}
	if analytics == "" {
		return nil, errors.New("analytics topic is required")
	}

	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]Route), decoders: NewDecoders()}
	generationRun := func(p *payloads.GenerationRequestedEvent) error { return requireRun(p.RunID) }
	for _, r := range []Route{
		{EventType: enums.EventGenerationRequested, AggregateType: enums.AggregateWorkflowRun, Topic: generation},
		{EventType: enums.EventGenerationResumed, AggregateType: enums.AggregateWorkflowRun, Topic: generation},
	} {
		reg.routes[r.EventType] = r
		Accept(reg.decoders, r.EventType, 1, generationRun)
	}

	reg.routes[enums.EventGenerationFinished] = Route{
		EventType:     enums.EventGenerationFinished,
		AggregateType: enums.AggregateWorkflowRun,
		Topic:         analytics,
	}
	Accept(reg.decoders, enums.EventGenerationFinished, 1, func(p *payloads.GenerationFinishedEvent) error {
		return requireRun(p.RunID)
	})

	reg.routes[enums.EventRenderCompleted] = Route{
		EventType:     enums.EventRenderCompleted,
		AggregateType: enums.AggregateVideo,
		Topic:         analytics,
	}
	Accept(reg.decoders, enums.EventRenderCompleted, 1, func(p *payloads.RenderCompletedEvent) error {
		if strings.TrimSpace(p.RenderID) == "" {
			return errors.New("render_id is required")
		}
		return nil
	})
	return reg, nil
}

func requireRun(id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("run_id is required")
	}
	return nil
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is a NonRetryableError since the row will not change on retry.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case route.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s, not %s", event.EventType, route.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if errors.Is(err, outbox.ErrEmptyData) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	payload, err := r.decoders.Decode(event.EventType, envelope)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Route: route, Envelope: envelope, Payload: payload}, nil
}
