package stratacache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/stratacache/codec"
	"github.com/unkn0wn-root/stratacache/internal/keys"
	"github.com/unkn0wn-root/stratacache/local"
	"github.com/unkn0wn-root/stratacache/remote"
)

const (
	defaultTTL         = 10 * time.Minute
	defaultLocalTTL    = time.Minute
	defaultNegativeTTL = 30 * time.Second
	defaultWaitBudget  = 3 * time.Second
	defaultRemoteGuard = 10 * time.Second
	defaultLockPoll    = 50 * time.Millisecond
	defaultRefreshTick = 100 * time.Millisecond
	defaultRefreshEach = time.Minute
)

type cache[V any] struct {
	ns     string
	local  local.Store
	remote remote.Store
	codec  codec.Codec[V]

	loader      Loader[V]
	batchLoader BatchLoader[V]
	updater     Updater[V]

	log   Logger
	hooks Hooks

	enabled bool
	closed  atomic.Bool

	ttl      time.Duration // remote entries
	localTTL time.Duration // local cap; localTTL <= ttl
	negative NegativeCachingOptions
	locks    LockOptions
	refresh  RefreshOptions
	tel      TelemetryOptions

	computeCost SetCostFunc

	locktab   *lockTable
	refresher *refresher
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("stratacache: namespace is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("stratacache: codec is required")
	}
	if opts.Local == nil && opts.Remote == nil {
		return nil, fmt.Errorf("stratacache: at least one tier is required")
	}
	if opts.Locks.Remote && opts.Remote == nil {
		return nil, fmt.Errorf("stratacache: remote lock requires a remote tier")
	}

	c := &cache[V]{
		ns:          opts.Namespace,
		local:       opts.Local,
		remote:      opts.Remote,
		codec:       opts.Codec,
		loader:      opts.Loader,
		batchLoader: opts.BatchLoader,
		updater:     opts.Updater,
		enabled:     !opts.Disabled,
		negative:    opts.Negative,
		locks:       opts.Locks,
		refresh:     opts.Refresh,
		tel:         opts.Telemetry,
		locktab:     newLockTable(),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.ttl = coalesce(opts.DefaultTTL, defaultTTL)
	c.localTTL = coalesce(opts.LocalTTL, defaultLocalTTL)
	if c.localTTL > c.ttl {
		c.localTTL = c.ttl
	}
	c.negative.TTL = coalesce(c.negative.TTL, defaultNegativeTTL)
	c.locks.WaitBudget = coalesce(c.locks.WaitBudget, defaultWaitBudget)
	c.locks.RemoteGuard = coalesce(c.locks.RemoteGuard, defaultRemoteGuard)
	c.locks.PollInterval = coalesce(c.locks.PollInterval, defaultLockPoll)
	c.refresh.DefaultInterval = coalesce(c.refresh.DefaultInterval, defaultRefreshEach)
	c.refresh.Tick = coalesce(c.refresh.Tick, defaultRefreshTick)

	if opts.ComputeSetCost != nil {
		c.computeCost = opts.ComputeSetCost
	} else {
		c.computeCost = func(_ string, _ []byte) int64 { return 1 }
	}

	if c.local != nil {
		c.local.OnEvict(c.onEviction)
	}
	if c.enabled && c.refresh.Enabled && c.local != nil {
		c.refresher = newRefresher(c.refresh.Tick)
		c.refresher.start(c.refreshKey)
	}
	return c, nil
}

func (c *cache[V]) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.refresher != nil {
		c.refresher.stop()
	}
	var errs []error
	if c.local != nil {
		if err := c.local.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.remote != nil {
		if err := c.remote.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ---- telemetry shaping ----

// hk shapes a user key for hooks per TelemetryOptions.RecordKeys.
func (c *cache[V]) hk(key string) string {
	if c.tel.RecordKeys {
		return key
	}
	return ""
}

func (c *cache[V]) sz(b []byte) int {
	if c.tel.RecordValueSize {
		return len(b)
	}
	return 0
}

func (c *cache[V]) sampled() bool {
	r := c.tel.SamplingRatio
	return r <= 0 || r >= 1 || rand.Float64() < r
}

// isCancel distinguishes caller cancellation (surfaced verbatim) from
// cache-layer failures (absorbed).
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ---- local tier plumbing ----

func (c *cache[V]) userKey(fullKey string) string {
	return fullKey[len(c.ns)+1:]
}

func (c *cache[V]) onEviction(fullKey string, reason local.EvictionReason) {
	key := c.userKey(fullKey)
	if c.refresher != nil && reason != local.Replaced {
		c.refresher.untrack(key)
	}
	c.hooks.Eviction(c.hk(key), reason)
}

// clampLocal bounds a local entry TTL so it never exceeds the remote TTL
// written in the same put.
func (c *cache[V]) clampLocal(remoteTTL time.Duration) time.Duration {
	if remoteTTL > 0 && remoteTTL < c.localTTL {
		return remoteTTL
	}
	return c.localTTL
}

// localSet stores wire bytes in L1 and notifies the refresh scheduler.
// A write over a live entry raises a Replaced eviction first, which keeps
// refresh tracking alive.
func (c *cache[V]) localSet(ctx context.Context, key string, wire []byte, ttl time.Duration) {
	if c.local == nil {
		return
	}
	fk := keys.Full(c.ns, key)
	if _, ok := c.local.Get(ctx, fk); ok {
		c.onEviction(fk, local.Replaced)
	}
	if !c.local.Set(ctx, fk, wire, c.computeCost(fk, wire), ttl) {
		c.log.Debug("local set rejected (pressure)", Fields{"key": key})
		return
	}
	c.hooks.LocalSet(c.hk(key), c.sz(wire))
	if c.refresher != nil {
		c.refresher.track(key, c.refreshInterval(key))
	}
}

func (c *cache[V]) localDel(ctx context.Context, key string) {
	if c.local == nil {
		return
	}
	fk := keys.Full(c.ns, key)
	if c.local.Del(ctx, fk) {
		c.onEviction(fk, local.Explicit)
	}
}

func (c *cache[V]) refreshInterval(key string) time.Duration {
	if c.refresh.IntervalFor != nil {
		if iv := c.refresh.IntervalFor(key); iv > 0 {
			return iv
		}
	}
	return c.refresh.DefaultInterval
}

// ---- read path ----

// Get reads L1 then L2 and never touches the data source. Remote transport
// errors and decode failures on cached values degrade to a miss.
func (c *cache[V]) Get(ctx context.Context, key string) (Result[V], error) {
	if !c.enabled || c.closed.Load() {
		return notFound[V](), nil
	}
	if err := ctx.Err(); err != nil {
		return notFound[V](), err
	}
	fk := keys.Full(c.ns, key)

	if c.local != nil {
		if b, ok := c.local.Get(ctx, fk); ok {
			if c.sampled() {
				c.hooks.LocalHit(c.hk(key))
			}
			if codec.IsTombstone(b) {
				return knownAbsent[V](), nil
			}
			v, err := c.codec.Decode(b)
			if err == nil {
				return found(v), nil
			}
			// self-heal: drop the undecodable entry and fall through to L2
			c.localDel(ctx, key)
			c.hooks.AbsorbedError("get.decode", c.hk(key), err)
		} else if c.sampled() {
			c.hooks.LocalMiss(c.hk(key))
		}
	}

	if c.remote == nil {
		return notFound[V](), nil
	}

	b, ok, err := c.remote.Get(ctx, fk)
	if err != nil {
		if isCancel(err) {
			return notFound[V](), err
		}
		c.hooks.AbsorbedError("get.remote", c.hk(key), err)
		c.log.Warn("remote get failed; treating as miss", Fields{"key": key, "err": err})
		return notFound[V](), nil
	}
	if !ok {
		if c.sampled() {
			c.hooks.RemoteMiss(c.hk(key))
		}
		return notFound[V](), nil
	}
	if c.sampled() {
		c.hooks.RemoteHit(c.hk(key))
	}

	if codec.IsTombstone(b) {
		c.localSet(ctx, key, b, c.clampLocal(c.negative.TTL))
		return knownAbsent[V](), nil
	}
	v, err := c.codec.Decode(b)
	if err != nil {
		// corrupt or schema-drifted remote value: downgrade to miss
		c.hooks.AbsorbedError("get.decode", c.hk(key), err)
		c.log.Warn("remote value undecodable; treating as miss", Fields{"key": key, "err": err})
		return notFound[V](), nil
	}
	c.localSet(ctx, key, b, c.clampLocal(c.ttl))
	return found(v), nil
}

// ---- load-through ----

// GetOrLoad resolves key through the optimistic read, the in-process lock
// with a double-check, the optional remote lock with a triple-check, and
// finally the data source. The double-check gives single-flight within the
// process; the triple-check extends it across processes for the window
// bounded by the remote-lock guard.
func (c *cache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration) (Result[V], error) {
	if c.closed.Load() {
		return notFound[V](), ErrClosed
	}
	if c.loader == nil {
		return notFound[V](), ErrNoLoader
	}
	if !c.enabled {
		return c.loadDirect(ctx, key)
	}

	// 1. optimistic
	if r, err := c.Get(ctx, key); err != nil || r.Resolved() {
		return r, err
	}

	// 2. in-process lock (best effort)
	if !c.locks.DisableInProcess {
		release, err := c.locktab.acquire(ctx, key, c.locks.WaitBudget)
		switch {
		case err == nil:
			defer release()
		case errors.Is(err, ErrLockTimeout):
			c.hooks.LockDowngrade(c.hk(key), false)
			c.log.Warn("in-process lock wait elapsed; loading unlocked", Fields{"key": key})
		default:
			return notFound[V](), err // cancellation
		}

		// 3. double-check under the in-process lock
		if r, err := c.Get(ctx, key); err != nil || r.Resolved() {
			return r, err
		}
	}

	// 4. remote lock (best effort)
	if c.locks.Remote && c.remote != nil {
		release, acquired := c.takeRemoteLock(ctx, key)
		if err := ctx.Err(); err != nil {
			if release != nil {
				release()
			}
			return notFound[V](), err
		}
		if acquired {
			defer release()
			// 5. triple-check: another process may have loaded meanwhile
			if r, err := c.Get(ctx, key); err != nil || r.Resolved() {
				return r, err
			}
		} else {
			c.hooks.LockDowngrade(c.hk(key), true)
			c.log.Warn("remote lock not acquired; loading unlocked", Fields{"key": key})
		}
	}

	// 6. load from the authoritative source; its errors surface verbatim
	v, ok, err := c.loader.Query(ctx, key)
	if err != nil {
		return notFound[V](), err
	}

	// 7. write through the unlocked variant (both locks may be held)
	if ok {
		c.putUnlocked(ctx, key, v, ttl)
		return found(v), nil
	}
	if c.negative.Enabled {
		c.putTombstoneUnlocked(ctx, key)
		return knownAbsent[V](), nil
	}
	return notFound[V](), nil
}

// loadDirect is the pass-through used when the cache is disabled.
func (c *cache[V]) loadDirect(ctx context.Context, key string) (Result[V], error) {
	v, ok, err := c.loader.Query(ctx, key)
	if err != nil {
		return notFound[V](), err
	}
	if !ok {
		return notFound[V](), nil
	}
	return found(v), nil
}

// takeRemoteLock polls the remote lock until acquired or the wait budget
// elapses. Transport errors surface as not-acquired so the engine can
// degrade to a lock-free load.
func (c *cache[V]) takeRemoteLock(ctx context.Context, key string) (release func(), acquired bool) {
	lk := keys.Lock(c.ns, key)
	token := uuid.NewString()
	deadline := time.Now().Add(c.locks.WaitBudget)

	for {
		ok, err := c.remote.TakeLock(ctx, lk, token, c.locks.RemoteGuard)
		if err != nil {
			if isCancel(err) {
				return nil, false
			}
			c.hooks.AbsorbedError("lock.take", c.hk(key), err)
			c.log.Warn("remote lock take failed; degrading", Fields{"key": key, "err": err})
			return nil, false
		}
		if ok {
			return func() {
				// the guard may have to expire instead; release must not be
				// skipped just because the caller's ctx is gone
				rctx := context.WithoutCancel(ctx)
				if _, err := c.remote.ReleaseLock(rctx, lk, token); err != nil {
					c.hooks.AbsorbedError("lock.release", c.hk(key), err)
					c.log.Warn("remote lock release failed; guard expiry will recover", Fields{"key": key, "err": err})
				}
			}, true
		}
		if !time.Now().Before(deadline) {
			return nil, false
		}
		select {
		case <-time.After(c.locks.PollInterval):
		case <-ctx.Done():
			return nil, false
		}
	}
}

// ---- write path ----

// Put acquires both locks best-effort and writes through the unlocked
// variant. See Cache.Put for the accepted-vs-durable contract.
func (c *cache[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	return c.putLocked(ctx, key, func() error {
		return c.putUnlocked(ctx, key, value, ttl)
	})
}

// PutAbsent writes a tombstone under both locks.
func (c *cache[V]) PutAbsent(ctx context.Context, key string) error {
	return c.putLocked(ctx, key, func() error {
		return c.putTombstoneUnlocked(ctx, key)
	})
}

// putLocked wraps a write in the in-process and remote locks, both best
// effort: a lock timeout downgrades to the unlocked path rather than
// failing the write.
func (c *cache[V]) putLocked(ctx context.Context, key string, write func() error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !c.locks.DisableInProcess {
		release, err := c.locktab.acquire(ctx, key, c.locks.WaitBudget)
		switch {
		case err == nil:
			defer release()
		case errors.Is(err, ErrLockTimeout):
			c.hooks.LockDowngrade(c.hk(key), false)
			c.log.Warn("in-process lock wait elapsed; writing unlocked", Fields{"key": key})
		default:
			return err
		}
	}
	if c.locks.Remote && c.remote != nil {
		if release, acquired := c.takeRemoteLock(ctx, key); acquired {
			defer release()
		} else {
			c.hooks.LockDowngrade(c.hk(key), true)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return write()
}

// putUnlocked is the lock-free write variant invoked while the caller may
// already hold both locks (the keyed slot is not reentrant). L2 is written
// strictly before L1 so a reader that misses L1 can never observe an older
// remote value than a newer local one. Serialization and remote failures
// are absorbed; only cancellation is returned.
func (c *cache[V]) putUnlocked(ctx context.Context, key string, value V, ttl time.Duration) error {
	wire, err := c.codec.Encode(value)
	if err != nil {
		serr := &SerializationError{Key: key, Op: "encode", Err: err}
		c.hooks.AbsorbedError("put.encode", c.hk(key), serr)
		c.log.Error("encode failed; write suppressed", Fields{"key": key, "err": err})
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.writeWire(ctx, key, wire, ttl)
}

// putTombstoneUnlocked records "known absent" with the negative TTL.
func (c *cache[V]) putTombstoneUnlocked(ctx context.Context, key string) error {
	return c.writeWire(ctx, key, codec.TombstoneSentinel, c.negative.TTL)
}

func (c *cache[V]) writeWire(ctx context.Context, key string, wire []byte, ttl time.Duration) error {
	if c.remote != nil {
		fk := keys.Full(c.ns, key)
		if err := c.remote.Set(ctx, fk, wire, ttl); err != nil {
			if isCancel(err) {
				return err
			}
			c.hooks.AbsorbedError("put.remote", c.hk(key), &RemoteError{Op: "set", Err: err})
			c.log.Warn("remote set failed; continuing with local tier", Fields{"key": key, "err": err})
		} else {
			c.hooks.RemoteSet(c.hk(key), c.sz(wire), ttl)
		}
	}
	c.localSet(ctx, key, wire, c.clampLocal(ttl))
	return nil
}

// PutIfAbsent performs the conditional write on L2 only. L1 is left alone so
// a failed condition cannot leave the tiers ambiguous; the next Get promotes
// the winning value.
func (c *cache[V]) PutIfAbsent(ctx context.Context, key string, value V, ttl time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	if !c.enabled {
		return false, nil
	}
	if c.remote == nil {
		return false, ErrRemoteDisabled
	}
	wire, err := c.codec.Encode(value)
	if err != nil {
		return false, &SerializationError{Key: key, Op: "encode", Err: err}
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	ok, err := c.remote.SetNX(ctx, keys.Full(c.ns, key), wire, ttl)
	if err != nil {
		if isCancel(err) {
			return false, err
		}
		return false, &RemoteError{Op: "setnx", Err: err}
	}
	if ok {
		c.hooks.RemoteSet(c.hk(key), c.sz(wire), ttl)
	}
	return ok, nil
}

// ---- invalidation ----

// Invalidate removes the key from L1 first, then L2. Not lock-guarded: the
// semantics are "best effort soonest". Idempotent.
func (c *cache[V]) Invalidate(ctx context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	if !c.enabled {
		return false, nil
	}
	c.localDel(ctx, key)
	if c.remote == nil {
		return false, nil
	}
	deleted, err := c.remote.Del(ctx, keys.Full(c.ns, key))
	if err != nil {
		if isCancel(err) {
			return false, err
		}
		c.hooks.AbsorbedError("invalidate.remote", c.hk(key), &RemoteError{Op: "del", Err: err})
		c.log.Warn("remote delete failed", Fields{"key": key, "err": err})
		return false, nil
	}
	return deleted, nil
}

// Update writes through to the data source, then invalidates both tiers.
// Invalidate-after-commit avoids the stale-cache race where a source commit
// outlives a concurrent cache write. Data-source errors surface verbatim.
func (c *cache[V]) Update(ctx context.Context, key string, value V) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.updater == nil {
		return ErrNoUpdater
	}
	if err := c.updater.Update(ctx, key, value); err != nil {
		return err
	}
	_, err := c.Invalidate(ctx, key)
	return err
}

// Reload bypasses both tiers and forces a revalidation from the source.
func (c *cache[V]) Reload(ctx context.Context, key string, ttl time.Duration) (Result[V], error) {
	if c.closed.Load() {
		return notFound[V](), ErrClosed
	}
	if c.loader == nil {
		return notFound[V](), ErrNoLoader
	}
	v, ok, err := c.loader.Query(ctx, key)
	if err != nil {
		return notFound[V](), err
	}
	if !c.enabled {
		if !ok {
			return notFound[V](), nil
		}
		return found(v), nil
	}
	if ok {
		if err := c.Put(ctx, key, v, ttl); err != nil {
			return found(v), err
		}
		return found(v), nil
	}
	if c.negative.Enabled {
		if err := c.PutAbsent(ctx, key); err != nil {
			return knownAbsent[V](), err
		}
		return knownAbsent[V](), nil
	}
	_, err = c.Invalidate(ctx, key)
	return notFound[V](), err
}

// ---- background refresh ----

// refreshKey revalidates one tracked entry. Preference order: a live L2
// value, then the data source. A failed refresh leaves the entry untouched
// and does not shorten its TTL.
func (c *cache[V]) refreshKey(key string) {
	ctx := context.Background()

	// only live L1 entries are refreshed
	if c.local != nil {
		if _, ok := c.local.Get(ctx, keys.Full(c.ns, key)); !ok {
			c.refresher.untrack(key)
			return
		}
	}

	if c.remote != nil {
		b, ok, err := c.remote.Get(ctx, keys.Full(c.ns, key))
		if err != nil {
			c.hooks.AbsorbedError("refresh.load", c.hk(key), err)
		} else if ok && !codec.IsTombstone(b) {
			if v, derr := c.codec.Decode(b); derr == nil {
				c.putUnlocked(ctx, key, v, 0)
				c.refresher.markRefreshed(key)
				c.hooks.Refreshed(c.hk(key))
				return
			}
			// undecodable remote value: fall through to the source
		}
	}

	if c.loader == nil {
		return
	}
	v, ok, err := c.loader.Query(ctx, key)
	if err != nil {
		// isolated: the entry stays as-is, the loop moves on
		c.hooks.AbsorbedError("refresh.load", c.hk(key), err)
		c.log.Warn("refresh load failed; entry left untouched", Fields{"key": key, "err": err})
		return
	}
	if ok {
		c.putUnlocked(ctx, key, v, 0)
		c.refresher.markRefreshed(key)
		c.hooks.Refreshed(c.hk(key))
		return
	}
	if c.negative.Enabled {
		c.putTombstoneUnlocked(ctx, key)
		c.refresher.markRefreshed(key)
		c.hooks.Refreshed(c.hk(key))
		return
	}
	_, _ = c.Invalidate(ctx, key)
}
