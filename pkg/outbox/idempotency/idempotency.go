package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the slice of the redis client the manager needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

const processedScope = "evt:processed:"

var (
	errScopeRequired = errors.New("idempotency scope is required")
	errIDRequired    = errors.New("idempotency id is required")
)

// Manager remembers which deliveries a consumer already handled. A marker
// lives for the configured TTL; zero keeps it until evicted.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether consumer already saw eventID and
// marks it seen when it had not.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errIDRequired
	}
	return m.mark(ctx, processedScope+strings.TrimSpace(consumer), eventID.String(), consumer)
}

// CheckAndMarkKey does the same for identifiers that are not uuids, such as
// renderer webhook ids.
func (m *Manager) CheckAndMarkKey(ctx context.Context, scope, id string) (bool, error) {
	return m.mark(ctx, scope, id, scope)
}

// Delete drops the marker so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return errIDRequired
	}
	return m.forget(ctx, processedScope+strings.TrimSpace(consumer), eventID.String(), consumer)
}

func (m *Manager) DeleteKey(ctx context.Context, scope, id string) error {
	return m.forget(ctx, scope, id, scope)
}

func (m *Manager) mark(ctx context.Context, scope, id, name string) (bool, error) {
	key, err := m.key(scope, id, name)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

func (m *Manager) forget(ctx context.Context, scope, id, name string) error {
	key, err := m.key(scope, id, name)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// key validates name (the caller supplied consumer or scope) separately
// from the composed scope so an empty consumer is not hidden by the prefix.
func (m *Manager) key(scope, id, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errScopeRequired
	}
	if strings.TrimSpace(id) == "" {
		return "", errIDRequired
	}
	return m.store.IdempotencyKey(scope, id), nil
}
