// Package idempotency keeps at-least-once event delivery from publishing the same
// outbox row twice when the row's published mark is lost to a rolled back batch.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the subset of the Redis client the guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard records which events a named sink already received.
// Keys follow the `fin:idempotency:evt:<sink>:<event_id>` pattern.
type Guard struct {
	store Store
	ttl   time.Duration
}

// NewGuard builds a guard whose claims expire after ttl. A zero ttl keeps claims forever.
func NewGuard(store Store, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim reports whether eventID was already delivered to sink. When it was not,
// the event is claimed and the caller must Release it if delivery fails.
func (g *Guard) Claim(ctx context.Context, sink string, eventID uuid.UUID) (delivered bool, err error) {
	key, err := g.key(sink, eventID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release drops a claim so the next attempt delivers the event again.
func (g *Guard) Release(ctx context.Context, sink string, eventID uuid.UUID) error {
	key, err := g.key(sink, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(sink string, eventID uuid.UUID) (string, error) {
	if sink == "" {
		return "", errors.New("sink name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:"+sink, eventID.String()), nil
}
