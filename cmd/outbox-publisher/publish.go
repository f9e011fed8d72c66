package main

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/registry"
)

const publishTimeout = 15 * time.Second

// publisherFactory returns the publisher for a topic, or nil when the topic
// has none configured.
type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// topicPublishers resolves publishers through the shared Pub/Sub client.
func topicPublishers(lookup func(topic string) *gcppubsub.Publisher) publisherFactory {
	return func(topic string) publisher {
		p := lookup(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

// newMessage copies the routing attributes consumers filter on so they can
// skip foreign events without decoding the body.
func newMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// send publishes and waits for the server ack.
func send(ctx context.Context, pub publisher, msg *gcppubsub.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	res := pub.Publish(ctx, msg)
	if res == nil {
		return "", registry.NewNonRetryableError(errors.New("publisher returned no result"))
	}
	return res.Get(ctx)
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
