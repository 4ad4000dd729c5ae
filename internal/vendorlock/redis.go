package vendorlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockWait  = 5 * time.Second
	defaultRetryStep = 25 * time.Millisecond

	busyRetryAfter = time.Second
)

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker extends per-vendor exclusion across API replicas using SETNX + TTL.
// The in-process locker is taken first so local contention never reaches Redis.
type RedisLocker struct {
	client redisStore
	local  *LocalLocker
	ttl    time.Duration
	wait   time.Duration
	step   time.Duration
	// hold bounds the guarded work so it finishes before the key can expire.
	hold time.Duration
}

// NewRedisLocker constructs a Redis-backed vendor lock.
func NewRedisLocker(client redisStore, ttl, wait time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for vendor lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &RedisLocker{
		client: client,
		local:  NewLocalLocker(),
		ttl:    ttl,
		wait:   wait,
		step:   defaultRetryStep,
		hold:   ttl - ttl/5,
	}, nil
}

func (l *RedisLocker) WithVendorLock(ctx context.Context, vendorID uuid.UUID, fn func(ctx context.Context) error) error {
	return l.local.WithVendorLock(ctx, vendorID, func(ctx context.Context) error {
		key := l.client.LockKey("vendor", vendorID.String())
		owner, err := l.acquire(ctx, key)
		if err != nil {
			return err
		}
		defer l.release(context.WithoutCancel(ctx), key, owner)

		held, cancel := context.WithTimeout(ctx, l.hold)
		defer cancel()
		err = fn(held)
		if err != nil && ctx.Err() == nil && errors.Is(held.Err(), context.DeadlineExceeded) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "vendor lock held too long")
		}
		return err
	})
}

func (l *RedisLocker) acquire(ctx context.Context, key string) (string, error) {
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lock")
		}
		if ok {
			return owner, nil
		}
		if time.Now().After(deadline) {
			return "", pkgerrors.New(pkgerrors.CodeConflict, "vendor is busy, retry shortly").WithRetryAfter(busyRetryAfter)
		}
		timer := time.NewTimer(l.step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// release is best effort: a lock whose TTL lapsed may already belong to another
// replica, and ReleaseOwned leaves that one alone.
func (l *RedisLocker) release(ctx context.Context, key, owner string) {
	_, _ = l.client.ReleaseOwned(ctx, key, owner)
}
