package stratacache

import (
	"context"
	"errors"

	"time"

	"github.com/unkn0wn-root/stratacache/codec"
	"github.com/unkn0wn-root/stratacache/internal/keys"
)

// batchLookup resolves keys across L1 and a single L2 multi-get. found holds
// domain values; absent holds keys settled by a tombstone. Keys in neither
// map are plain misses. Requested keys are deduplicated.
func (c *cache[V]) batchLookup(ctx context.Context, userKeys []string) (foundVals map[string]V, absent map[string]struct{}, err error) {
	foundVals = make(map[string]V, len(userKeys))
	absent = make(map[string]struct{})
	if err := ctx.Err(); err != nil {
		return foundVals, absent, err
	}

	seen := make(map[string]struct{}, len(userKeys))
	var localMiss []string
	for _, k := range userKeys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		if c.local == nil {
			localMiss = append(localMiss, k)
			continue
		}
		b, ok := c.local.Get(ctx, keys.Full(c.ns, k))
		if !ok {
			if c.sampled() {
				c.hooks.LocalMiss(c.hk(k))
			}
			localMiss = append(localMiss, k)
			continue
		}
		if c.sampled() {
			c.hooks.LocalHit(c.hk(k))
		}
		if codec.IsTombstone(b) {
			absent[k] = struct{}{}
			continue
		}
		v, derr := c.codec.Decode(b)
		if derr != nil {
			c.localDel(ctx, k)
			c.hooks.AbsorbedError("get.decode", c.hk(k), derr)
			localMiss = append(localMiss, k)
			continue
		}
		foundVals[k] = v
	}

	if c.remote == nil || len(localMiss) == 0 {
		return foundVals, absent, nil
	}

	fks := make([]string, len(localMiss))
	for i, k := range localMiss {
		fks[i] = keys.Full(c.ns, k)
	}
	vals, err := c.remote.MGet(ctx, fks)
	if err != nil {
		if isCancel(err) {
			return foundVals, absent, err
		}
		c.hooks.AbsorbedError("batch.remote", "", &RemoteError{Op: "mget", Err: err})
		c.log.Warn("remote multi-get failed; treating subset as miss", Fields{"keys": len(localMiss), "err": err})
		return foundVals, absent, nil
	}

	for i, b := range vals {
		k := localMiss[i]
		if b == nil {
			if c.sampled() {
				c.hooks.RemoteMiss(c.hk(k))
			}
			continue
		}
		if c.sampled() {
			c.hooks.RemoteHit(c.hk(k))
		}
		if codec.IsTombstone(b) {
			c.localSet(ctx, k, b, c.clampLocal(c.negative.TTL))
			absent[k] = struct{}{}
			continue
		}
		v, derr := c.codec.Decode(b)
		if derr != nil {
			c.hooks.AbsorbedError("get.decode", c.hk(k), derr)
			continue
		}
		c.localSet(ctx, k, b, c.clampLocal(c.ttl))
		foundVals[k] = v
	}
	return foundVals, absent, nil
}

// GetBatch partitions keys into L1 hits and misses, issues one multi-get for
// the misses, backfills L1, and returns only the found values.
func (c *cache[V]) GetBatch(ctx context.Context, userKeys []string) (map[string]V, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if !c.enabled || len(userKeys) == 0 {
		return map[string]V{}, nil
	}
	foundVals, _, err := c.batchLookup(ctx, userKeys)
	return foundVals, err
}

// GetOrLoadBatch resolves what it can from both tiers, bulk-loads the
// still-missing subset, and backfills each loaded entry under its per-key
// lock with a double-check (a concurrent writer's value wins). Keys the
// loader omits are cached as tombstones when negative caching is enabled.
func (c *cache[V]) GetOrLoadBatch(ctx context.Context, userKeys []string, ttl time.Duration) (map[string]V, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if len(userKeys) == 0 {
		return map[string]V{}, nil
	}
	if c.batchLoader == nil && c.loader == nil {
		return nil, ErrNoLoader
	}
	if !c.enabled {
		return c.loadBatchDirect(ctx, userKeys)
	}

	foundVals, absent, err := c.batchLookup(ctx, userKeys)
	if err != nil {
		return foundVals, err
	}

	var missing []string
	seen := make(map[string]struct{}, len(userKeys))
	for _, k := range userKeys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := foundVals[k]; ok {
			continue
		}
		if _, ok := absent[k]; ok {
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return foundVals, nil
	}

	loaded, err := c.loadBatch(ctx, missing)
	if err != nil {
		return foundVals, err
	}

	for _, k := range missing {
		v, ok := loaded[k]
		if ok {
			c.backfillLocked(ctx, k, func() { c.putUnlocked(ctx, k, v, ttl) })
			foundVals[k] = v
			continue
		}
		if c.negative.Enabled {
			c.backfillLocked(ctx, k, func() { c.putTombstoneUnlocked(ctx, k) })
		}
	}
	return foundVals, nil
}

// loadBatch prefers the bulk loader and falls back to per-key queries.
// Data-source errors surface verbatim.
func (c *cache[V]) loadBatch(ctx context.Context, missing []string) (map[string]V, error) {
	if c.batchLoader != nil {
		return c.batchLoader.QueryBatch(ctx, missing)
	}
	out := make(map[string]V, len(missing))
	for _, k := range missing {
		v, ok, err := c.loader.Query(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *cache[V]) loadBatchDirect(ctx context.Context, userKeys []string) (map[string]V, error) {
	uniq := make([]string, 0, len(userKeys))
	seen := make(map[string]struct{}, len(userKeys))
	for _, k := range userKeys {
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			uniq = append(uniq, k)
		}
	}
	return c.loadBatch(ctx, uniq)
}

// backfillLocked runs the put protocol for one loaded entry: per-key lock
// (best effort), double-check for a concurrent write, optional remote lock,
// then the unlocked write.
func (c *cache[V]) backfillLocked(ctx context.Context, key string, write func()) {
	if !c.locks.DisableInProcess {
		release, err := c.locktab.acquire(ctx, key, c.locks.WaitBudget)
		switch {
		case err == nil:
			defer release()
		case errors.Is(err, ErrLockTimeout):
			c.hooks.LockDowngrade(c.hk(key), false)
		default:
			return // cancellation
		}

		// a concurrent writer has newer data than our loader snapshot
		if r, err := c.Get(ctx, key); err != nil || r.Resolved() {
			return
		}
	}
	if c.locks.Remote && c.remote != nil {
		if release, acquired := c.takeRemoteLock(ctx, key); acquired {
			defer release()
		} else {
			c.hooks.LockDowngrade(c.hk(key), true)
		}
		if ctx.Err() != nil {
			return
		}
	}
	write()
}

// InvalidateBatch removes keys from L1 individually, then multi-deletes on
// L2. Returns the remote deletion count.
func (c *cache[V]) InvalidateBatch(ctx context.Context, userKeys []string) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if !c.enabled || len(userKeys) == 0 {
		return 0, nil
	}
	seen := make(map[string]struct{}, len(userKeys))
	fks := make([]string, 0, len(userKeys))
	for _, k := range userKeys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		c.localDel(ctx, k)
		fks = append(fks, keys.Full(c.ns, k))
	}
	if c.remote == nil {
		return 0, nil
	}
	n, err := c.remote.MDel(ctx, fks)
	if err != nil {
		if isCancel(err) {
			return 0, err
		}
		c.hooks.AbsorbedError("batch.remote", "", &RemoteError{Op: "mdel", Err: err})
		c.log.Warn("remote multi-delete failed", Fields{"keys": len(fks), "err": err})
		return 0, nil
	}
	return n, nil
}
