package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
)

// ErrNotAccepted is returned by Decode for an event type or version no handler was
// registered for.
var ErrNotAccepted = errors.New("event not accepted by this consumer")

type decodeFunc func(json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders maps the (event type, envelope version) pairs a consumer understands to
// typed payload decoders. Safe for concurrent use.
type Decoders struct {
	mu    sync.RWMutex
	byKey map[decoderKey]decodeFunc
	types map[enums.OutboxEventType]bool
}

func NewDecoders() *Decoders {
	return &Decoders{
		byKey: make(map[decoderKey]decodeFunc),
		types: make(map[enums.OutboxEventType]bool),
	}
}

// Accept registers *T as the payload of eventType at version. check, when not nil,
// rejects payloads that decode but are unusable.
func Accept[T any](d *Decoders, eventType enums.OutboxEventType, version int, check func(*T) error) {
	fn := func(raw json.RawMessage) (any, error) {
		payload := new(T)
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("decode %s v%d: %w", eventType, version, err)
		}
		if check != nil {
			if err := check(payload); err != nil {
				return nil, fmt.Errorf("%s v%d: %w", eventType, version, err)
			}
		}
		return payload, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKey[decoderKey{eventType: eventType, version: version}] = fn
	d.types[eventType] = true
}

// Accepts reports whether any version of eventType is registered.
func (d *Decoders) Accepts(eventType enums.OutboxEventType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.types[eventType]
}

// Decode returns the typed payload carried by env. Envelopes written before
// versioning carry 0 and are read as version 1.
func (d *Decoders) Decode(eventType enums.OutboxEventType, env outbox.PayloadEnvelope) (any, error) {
	version := env.Version
	if version == 0 {
		version = 1
	}
	d.mu.RLock()
	fn, ok := d.byKey[decoderKey{eventType: eventType, version: version}]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrNotAccepted, eventType, version)
	}
	return fn(env.Data)
}
