package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fin:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestClaimFirstDelivery(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	guard, err := NewGuard(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	eventID := uuid.New()
	delivered, err := guard.Claim(context.Background(), "redis", eventID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if delivered {
		t.Fatalf("expected first claim to report not delivered")
	}
	if want := "fin:idempotency:evt:redis:" + eventID.String(); store.lastKey != want {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}
}

func TestClaimAlreadyDelivered(t *testing.T) {
	guard, err := NewGuard(&fakeStore{setNXResult: false}, time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	delivered, err := guard.Claim(context.Background(), "redis", uuid.New())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !delivered {
		t.Fatalf("expected already delivered")
	}
}

func TestClaimStoreError(t *testing.T) {
	guard, _ := NewGuard(&fakeStore{setNXError: errors.New("boom")}, time.Hour)
	if _, err := guard.Claim(context.Background(), "redis", uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestClaimRejectsMissingInputs(t *testing.T) {
	guard, _ := NewGuard(&fakeStore{setNXResult: true}, time.Hour)
	if _, err := guard.Claim(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected sink error")
	}
	if _, err := guard.Claim(context.Background(), "redis", uuid.Nil); err == nil {
		t.Fatal("expected event id error")
	}
}

func TestRelease(t *testing.T) {
	store := &fakeStore{}
	guard, _ := NewGuard(store, time.Hour)
	eventID := uuid.New()
	if err := guard.Release(context.Background(), "redis", eventID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if want := "fin:idempotency:evt:redis:" + eventID.String(); store.lastDeleted != want {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}

func TestNewGuardValidation(t *testing.T) {
	if _, err := NewGuard(nil, time.Hour); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := NewGuard(&fakeStore{}, -time.Second); err == nil {
		t.Fatal("expected ttl error")
	}
}
