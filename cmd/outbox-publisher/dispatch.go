package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/registry"
)

type batchSummary struct {
	published    int
	retried      int
	deadLettered int
}

// processBatch handles one batch of due rows inside a single transaction and
// returns how many rows it fetched. A row failure never aborts the batch; only
// bookkeeping writes do.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	var (
		fetched int
		sum     batchSummary
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		sum = batchSummary{}
		events, err := s.repo.FetchDue(tx, s.now(), s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch due events: %w", err)
		}
		fetched = len(events)
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event, &sum); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fetched, err
	}
	if fetched > 0 {
		s.metrics.ObserveBatch(fetched)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"fetched":       fetched,
			"published":     sum.published,
			"retried":       sum.retried,
			"dead_lettered": sum.deadLettered,
		}), "outbox.batch")
	}
	return fetched, nil
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, sum *batchSummary) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		sum.deadLettered++
		return s.deadLetter(ctx, tx, event, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	topic := resolved.Route.Topic
	ctx = s.logg.WithField(ctx, "topic", topic)

	pub := s.publishers(topic)
	if pub == nil {
		sum.deadLettered++
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonNonRetryable,
			fmt.Errorf("no publisher for topic %s", topic))
	}

	started := s.now()
	_, err = send(ctx, pub, newMessage(event, resolved))
	if err == nil {
		s.metrics.ObservePublish(topic, s.now().Sub(started))
		s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxPublished)
		sum.published++
		if err := s.repo.MarkPublishedTx(tx, event.ID, s.now()); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		return nil
	}

	var terminal registry.NonRetryableError
	if errors.As(err, &terminal) {
		sum.deadLettered++
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonNonRetryable, err)
	}
	attempt := event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		sum.deadLettered++
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, err))
	}

	delay := s.retryDelay(attempt)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error":       err.Error(),
		"retry_in_ms": delay.Milliseconds(),
	}), "outbox.publish_failed")
	s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxRetried)
	sum.retried++
	if err := s.repo.ScheduleRetryTx(tx, event.ID, err, s.now().Add(delay)); err != nil {
		return fmt.Errorf("schedule retry %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error":        cause.Error(),
		"error_reason": reason,
	}), "outbox.dead_lettered")
	s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxDeadLettered)

	msg := cause.Error()
	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Topic:         topic,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// retryDelay doubles retryBase per prior attempt, capped at retryMax.
func (s *Service) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return s.retryMax
	}
	d := s.retryBase << (attempt - 1)
	if d <= 0 || d > s.retryMax {
		return s.retryMax
	}
	return d
}
