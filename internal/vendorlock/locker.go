// Package vendorlock serializes balance-changing work per vendor.
package vendorlock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker runs fn while holding the vendor's exclusive lock.
type Locker interface {
	WithVendorLock(ctx context.Context, vendorID uuid.UUID, fn func(ctx context.Context) error) error
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker constructs an empty keyed mutex.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*localEntry)}
}

func (l *LocalLocker) WithVendorLock(ctx context.Context, vendorID uuid.UUID, fn func(ctx context.Context) error) error {
	entry := l.acquireEntry(vendorID)
	defer l.releaseEntry(vendorID, entry)

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.ch }()

	return fn(ctx)
}

func (l *LocalLocker) acquireEntry(vendorID uuid.UUID) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[vendorID]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[vendorID] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) releaseEntry(vendorID uuid.UUID, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, vendorID)
	}
}

// size is used by tests to confirm entries are cleaned up.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
