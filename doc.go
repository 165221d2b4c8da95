// Package stratacache implements a two-level cache that fronts a slow
// authoritative data source: an in-process tier (L1) for sub-microsecond
// lookups on recently used values, and a shared remote tier (L2) for
// cross-process reuse.
//
// Components:
//   - local.Store: bounded in-process byte store with per-entry TTL and
//     eviction callbacks (e.g. Ristretto, BigCache).
//   - remote.Store: shared remote key-value store with TTL and primitive
//     mutual exclusion (e.g. Redis).
//   - codec.Codec[V]: (de)serializes V <-> []byte; never emits the reserved
//     tombstone sentinel for a legal value.
//
// Keys:
//
//	<ns>:<key>       - cache entries in both tiers
//	lock:<ns>:<key>  - remote lock entries
//
// Reads check L1, then L2 (promoting hits into L1), and never touch the data
// source. GetOrLoad adds stampede suppression: per-key in-process locking
// with a double-check, then an optional remote lock with a triple-check, so
// N concurrent misses on one key cost one authoritative load. Writes go to
// L2 first, then L1 with a clamped TTL, so readers that miss L1 never
// observe an older L2 value. Known-absent keys are cached as tombstones for
// a bounded duration when negative caching is enabled.
//
// Consistency is last-writer-wins with best-effort invalidation; a small
// inconsistency window between tiers is bounded by the L1 TTL. Cache-layer
// failures (remote outage, lock timeouts, codec errors on cached values) are
// absorbed to preserve availability and reported through Hooks; data-source
// errors and cancellations surface to the caller.
//
// When refresh is enabled, a background loop revalidates live L1 entries on
// a per-key interval: from L2 when it has a fresh value, otherwise from the
// data source. Note that each successful refresh rewrites the entry through
// the put path, so a steadily refreshed entry does not expire from L1 while
// it stays tracked.
package stratacache
