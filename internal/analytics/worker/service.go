package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/router"
	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
)

const analyticsConsumerName = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service feeds the analytics subscription into BigQuery. Malformed and
// unsupported messages are acked and logged; only transient failures nack.
type Service struct {
	subscription receiver
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription receiver, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case manager == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, manager: manager, logg: logg}, nil
}

func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether msg should be acked.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)
	env, err := envelopeFromMessage(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "analytics.message.invalid")
		return true
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       env.EventID,
		"event_type":     env.EventType,
		"aggregate_type": env.AggregateType,
		"aggregate_id":   env.AggregateID,
	})
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		s.logg.Warn(ctx, "analytics.message.invalid_event_id")
		return true
	}

	seen, err := s.manager.CheckAndMarkProcessed(ctx, analyticsConsumerName, eventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "analytics.idempotency.failed", err)
		return false
	case seen:
		s.logg.Info(ctx, "analytics.message.duplicate")
		return true
	}

	err = s.handler.Handle(ctx, env)
	switch {
	case err == nil:
		s.logg.Debug(ctx, "analytics.message.handled")
		return true
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(ctx, "analytics.message.unsupported")
		return true
	}
	s.logg.Error(ctx, "analytics.handler.failed", err)
	if delErr := s.manager.Delete(ctx, analyticsConsumerName, eventID); delErr != nil {
		s.logg.Error(ctx, "analytics.idempotency.release_failed", delErr)
	}
	return false
}

// envelopeFromMessage merges the outbox envelope with the routing attributes
// the publisher sets. The envelope wins for event id and time.
func envelopeFromMessage(msg *gcppubsub.Message) (types.Envelope, error) {
	stored, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		return types.Envelope{}, err
	}
	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	env := types.Envelope{
		EventID:       firstNonEmpty(strings.TrimSpace(stored.EventID), attr("event_id")),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   attr("aggregate_id"),
		Version:       stored.Version,
		OccurredAt:    stored.OccurredAt.UTC(),
		Payload:       stored.Data,
	}
	if env.AggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id missing")
	}
	if env.EventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}
	if env.OccurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			env.OccurredAt = created.UTC()
		}
	}
	return env, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
