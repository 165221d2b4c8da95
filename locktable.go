package stratacache

import (
	"context"
	"sync"
	"time"
)

// lockTable provides cooperative per-key mutual exclusion inside the
// process. Slots are created lazily on first contention and retained for the
// process lifetime; workloads with unbounded key cardinality should bound
// their key space or add a reaper (known limitation).
//
// Slots are NOT reentrant: a holder that re-acquires its own key deadlocks
// until the wait budget elapses. The engine keeps locked and unlocked write
// paths separate for exactly this reason.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (t *lockTable) slot(key string) chan struct{} {
	t.mu.Lock()
	ch, ok := t.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.slots[key] = ch
	}
	t.mu.Unlock()
	return ch
}

// acquire blocks up to wait for the key's slot. On success it returns an
// idempotent releaser. On timeout it returns ErrLockTimeout; on caller
// cancellation it returns the context error.
func (t *lockTable) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	ch := t.slot(key)

	select {
	case ch <- struct{}{}:
	default:
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case ch <- struct{}{}:
		case <-timer.C:
			return nil, ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
