package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertGenerationRun(ctx context.Context, row types.GenerationRunRow) error
	InsertRenderEvent(ctx context.Context, row types.RenderEventRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router decodes analytics envelopes and hands them to the handler for their event type.
type Router struct {
	decoders *registry.Decoders
	handlers map[enums.OutboxEventType]Handler
	logg     *logger.Logger
}

// NewRouter wires the default handlers. overrides replaces a default but
// never adds an event the router does not decode.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoders()
	registry.Accept(decoders, enums.EventGenerationFinished, 1, func(e *payloads.GenerationFinishedEvent) error {
		if e.RunID == uuid.Nil {
			return errors.New("run_id missing")
		}
		return nil
	})
	registry.Accept[payloads.RenderCompletedEvent](decoders, enums.EventRenderCompleted, 1, nil)

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventGenerationFinished: newGenerationFinishedHandler(writer, logg),
		enums.EventRenderCompleted:    newRenderCompletedHandler(writer, logg),
	}
	for event, custom := range overrides {
		if _, known := handlers[event]; known && custom != nil {
			handlers[event] = custom
		}
	}
	return &Router{decoders: decoders, handlers: handlers, logg: logg}, nil
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok || !r.decoders.Accepts(envelope.EventType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, outbox.PayloadEnvelope{
		Version: envelope.Version,
		Data:    envelope.Payload,
	})
	if err != nil {
		return err
	}
	return handler.Handle(ctx, envelope, payload)
}
