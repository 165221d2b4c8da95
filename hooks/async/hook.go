// Package asynchook decouples hook sinks from the cache hot path. Events are
// queued to a bounded channel and delivered by worker goroutines; when the
// queue is full, events are dropped rather than blocking the cache.
//
//	raw := myMetricsHooks{}
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := stratacache.New[User](stratacache.Options[User]{
//	    Namespace: "user",
//	    Codec:     codec.JSON[User]{},
//	    Local:     l1,
//	    Remote:    l2,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/stratacache"
	"github.com/unkn0wn-root/stratacache/local"
)

type Hooks struct {
	inner stratacache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ stratacache.Hooks = (*Hooks)(nil)

func New(inner stratacache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) LocalHit(k string)   { h.try(func() { h.inner.LocalHit(k) }) }
func (h *Hooks) LocalMiss(k string)  { h.try(func() { h.inner.LocalMiss(k) }) }
func (h *Hooks) RemoteHit(k string)  { h.try(func() { h.inner.RemoteHit(k) }) }
func (h *Hooks) RemoteMiss(k string) { h.try(func() { h.inner.RemoteMiss(k) }) }
func (h *Hooks) LocalSet(k string, size int) {
	h.try(func() { h.inner.LocalSet(k, size) })
}
func (h *Hooks) RemoteSet(k string, size int, ttl time.Duration) {
	h.try(func() { h.inner.RemoteSet(k, size, ttl) })
}
func (h *Hooks) Eviction(k string, reason local.EvictionReason) {
	h.try(func() { h.inner.Eviction(k, reason) })
}
func (h *Hooks) LockDowngrade(k string, remote bool) {
	h.try(func() { h.inner.LockDowngrade(k, remote) })
}
func (h *Hooks) AbsorbedError(op, k string, err error) {
	h.try(func() { h.inner.AbsorbedError(op, k, err) })
}
func (h *Hooks) Refreshed(k string) { h.try(func() { h.inner.Refreshed(k) }) }
