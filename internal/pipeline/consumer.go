package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/registry"
)

const generationConsumerName = "generation"

type executor interface {
	Execute(ctx context.Context, runID uuid.UUID) Result
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer executes workflow runs requested through the generation topic.
type Consumer struct {
	subscription receiver
	runner       executor
	manager      idempotencyChecker
	decoders     *registry.Decoders
	logg         *logger.Logger
}

func NewConsumer(subscription receiver, runner executor, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("generation subscription is required")
	}
	if runner == nil {
		return nil, errors.New("orchestrator is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoders()
	for _, eventType := range []enums.OutboxEventType{enums.EventGenerationRequested, enums.EventGenerationResumed} {
		registry.Accept(decoders, eventType, 1, func(e *payloads.GenerationRequestedEvent) error {
			if e.RunID == uuid.Nil {
				return errors.New("run_id missing")
			}
			return nil
		})
	}

	return &Consumer{
		subscription: subscription,
		runner:       runner,
		manager:      manager,
		decoders:     decoders,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	})

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		c.logg.Warn(logCtx, "generation.message.invalid_type")
		return processResult{}
	}
	if !c.decoders.Accepts(eventType) {
		return processResult{}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "generation.message.invalid_envelope")
		return processResult{}
	}
	eventID, err := uuid.Parse(strings.TrimSpace(envelope.EventID))
	if err != nil {
		c.logg.Warn(logCtx, "generation.message.invalid_event_id")
		return processResult{}
	}
	decoded, err := c.decoders.Decode(eventType, envelope)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "generation.message.invalid_payload")
		return processResult{}
	}
	event := decoded.(*payloads.GenerationRequestedEvent)
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":     eventID.String(),
		"resume_count": event.ResumeCount,
	})
	logCtx = c.logg.WithRunID(logCtx, event.RunID.String())

	already, err := c.manager.CheckAndMarkProcessed(logCtx, generationConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "generation.idempotency.failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "generation.message.duplicate")
		return processResult{}
	}

	res := c.runner.Execute(logCtx, event.RunID)
	if res.Interrupted {
		_ = c.manager.Delete(logCtx, generationConsumerName, eventID)
		c.logg.Warn(logCtx, "generation.run.redeliver")
		return processResult{nack: true}
	}
	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"status": res.Status,
		"busy":   res.Busy,
	}), fmt.Sprintf("generation.run.%s", outcomeLabel(res)))
	return processResult{}
}

func outcomeLabel(res Result) string {
	switch {
	case res.Busy:
		return "busy"
	case res.Status == "":
		return "dropped"
	default:
		return string(res.Status)
	}
}
