package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

// Envelope is an analytics delivery after its Pub/Sub attributes and outbox
// envelope have been merged. Payload is still the raw event data.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Payload       json.RawMessage
}
