package engine

import (
	"context"
	"sync"
	"time"
)

// lockTable provides a mutex per string key with a bounded acquisition
// wait. Orders acquire keys in a fixed order (event, then position, then
// account) so two orders contending on the same resources cannot
// deadlock. Contention is resolved by waiting, not by optimistic retry.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyLock)}
}

// acquire blocks until the key's lock is held, the wait elapses, or ctx is
// done. On success it returns a release func; otherwise ErrBusy (or the
// context error).
func (t *lockTable) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			t.put(key, l)
		}, nil
	case <-timer.C:
		t.put(key, l)
		return nil, ErrBusy
	case <-ctx.Done():
		t.put(key, l)
		return nil, ctx.Err()
	}
}

// put drops one reference and evicts the entry once nobody holds or waits
// on it, so the table does not grow without bound.
func (t *lockTable) put(key string, l *keyLock) {
	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()
}

// Lock key namespaces. The acquisition order is fixed: event before
// position before account.
func eventLockKey(eventID string) string {
	return "event:" + eventID
}

func positionLockKey(userID, eventID, outcome string) string {
	return "pos:" + userID + ":" + eventID + ":" + outcome
}

func accountLockKey(userID string) string {
	return "acct:" + userID
}
