package stratacache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/stratacache/codec"
	"github.com/unkn0wn-root/stratacache/internal/keys"
	lc "github.com/unkn0wn-root/stratacache/local"
	rm "github.com/unkn0wn-root/stratacache/remote"
)

// SetCostFunc computes the cost charged to the local tier for an entry.
type SetCostFunc func(key string, raw []byte) int64

// Loader queries the authoritative data source for a single key.
// ok=false means the source has no value for key (not an error).
type Loader[V any] interface {
	Query(ctx context.Context, key string) (v V, ok bool, err error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc[V any] func(ctx context.Context, key string) (V, bool, error)

func (f LoaderFunc[V]) Query(ctx context.Context, key string) (V, bool, error) {
	return f(ctx, key)
}

// BatchLoader queries the authoritative data source for many keys at once.
// Keys absent from the returned map are treated as missing from the source.
type BatchLoader[V any] interface {
	QueryBatch(ctx context.Context, keys []string) (map[string]V, error)
}

// BatchLoaderFunc adapts a function to the BatchLoader interface.
type BatchLoaderFunc[V any] func(ctx context.Context, keys []string) (map[string]V, error)

func (f BatchLoaderFunc[V]) QueryBatch(ctx context.Context, keys []string) (map[string]V, error) {
	return f(ctx, keys)
}

// Updater writes a value to the authoritative data source.
type Updater[V any] interface {
	Update(ctx context.Context, key string, value V) error
}

// UpdaterFunc adapts a function to the Updater interface.
type UpdaterFunc[V any] func(ctx context.Context, key string, value V) error

func (f UpdaterFunc[V]) Update(ctx context.Context, key string, value V) error {
	return f(ctx, key, value)
}

// Cache is the two-tier cache API. V is the caller's value type;
// serialization is handled by a pluggable codec.Codec[V].
type Cache[V any] interface {
	// Get reads L1 then L2, promoting L2 hits into L1. It never invokes the
	// data source and never takes locks.
	Get(ctx context.Context, key string) (Result[V], error)

	// GetOrLoad is Get plus load-through with stampede suppression: on a
	// miss the data source is queried at most once per key across concurrent
	// callers (and, with the remote lock enabled, across processes).
	// ttl = 0 uses DefaultTTL.
	GetOrLoad(ctx context.Context, key string, ttl time.Duration) (Result[V], error)

	// Put writes value to L2 first, then L1 with a clamped TTL. A nil return
	// means the write was accepted, not that it is durably cached: remote
	// and serialization failures are absorbed (recorded via Hooks/Logger)
	// so cache unavailability cannot crash callers.
	Put(ctx context.Context, key string, value V, ttl time.Duration) error

	// PutAbsent marks key as known-absent by writing a tombstone with the
	// negative-caching TTL. Same absorption semantics as Put.
	PutAbsent(ctx context.Context, key string) error

	// PutIfAbsent performs a conditional write on L2 only and reports
	// whether it took effect. L1 is not eagerly written; the next Get
	// populates it from L2.
	PutIfAbsent(ctx context.Context, key string, value V, ttl time.Duration) (bool, error)

	// Invalidate removes key from L1 first, then L2 ("best effort soonest").
	// Reports whether L2 deleted an entry.
	Invalidate(ctx context.Context, key string) (bool, error)

	// Update writes through to the data source, then invalidates both tiers.
	Update(ctx context.Context, key string, value V) error

	// Reload bypasses both tiers, queries the data source, and writes the
	// result through Put (or a tombstone/invalidation when the source has
	// nothing).
	Reload(ctx context.Context, key string, ttl time.Duration) (Result[V], error)

	// GetBatch resolves keys across L1 and a single L2 multi-get, backfills
	// L1, and returns only the found values.
	GetBatch(ctx context.Context, keys []string) (map[string]V, error)

	// GetOrLoadBatch is GetBatch plus a bulk load of the still-missing
	// subset, backfilled under per-key locks with a double-check: when a
	// concurrent writer already populated a key, the loader's value for it
	// is skipped (the loaded value is not guaranteed to be the newest).
	GetOrLoadBatch(ctx context.Context, keys []string, ttl time.Duration) (map[string]V, error)

	// InvalidateBatch removes keys from L1 individually, then multi-deletes
	// on L2. Returns the L2 deletion count.
	InvalidateBatch(ctx context.Context, keys []string) (int64, error)

	// Health runs the configured probes: remote PING and a local
	// write-read-delete self-test.
	Health(ctx context.Context) []ProbeResult

	// Close stops the refresh loop and closes owned stores.
	Close(ctx context.Context) error
}

// NegativeCachingOptions bound how long "known absent" results are cached.
type NegativeCachingOptions struct {
	Enabled bool
	TTL     time.Duration // 0 => 30s
}

// LockOptions tune stampede suppression.
type LockOptions struct {
	// DisableInProcess turns off the per-key in-process lock.
	DisableInProcess bool
	// Remote enables the L2 mutual-exclusion lock for cross-process
	// single-flight. Requires a remote tier.
	Remote bool
	// WaitBudget bounds both lock waits; on timeout the engine downgrades to
	// the unlocked path. 0 => 3s.
	WaitBudget time.Duration
	// RemoteGuard is the TTL on the remote lock entry; it bounds recovery
	// time if the holder dies. Must exceed the expected critical section.
	// 0 => 10s.
	RemoteGuard time.Duration
	// PollInterval is the pause between remote lock attempts. 0 => 50ms.
	PollInterval time.Duration
}

// RefreshOptions drive background revalidation of live L1 entries.
type RefreshOptions struct {
	Enabled bool
	// DefaultInterval between revalidations of a key. 0 => 1m.
	DefaultInterval time.Duration
	// IntervalFor overrides the interval per key; return 0 to use
	// DefaultInterval.
	IntervalFor func(key string) time.Duration
	// Tick is the scheduler scan period. 0 => 100ms.
	Tick time.Duration
}

// TelemetryOptions shape what reaches Hooks.
type TelemetryOptions struct {
	// RecordKeys passes user keys to hooks; off, hooks receive "".
	RecordKeys bool
	// RecordValueSize passes encoded sizes to hooks; off, hooks receive 0.
	RecordValueSize bool
	// SamplingRatio in (0,1] gates hit/miss hooks. 0 => 1 (record all).
	SamplingRatio float64
	// Tags are static labels for the hook sink; the engine does not read
	// them.
	Tags map[string]string
}

// Options tune the cache. Namespace and Codec are required, plus at least
// one tier; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "user", "product"
	Codec     c.Codec[V]

	// Tiers. A nil store disables that tier; at least one must be set.
	Local  lc.Store
	Remote rm.Store

	// Data-source collaborators. Loader is required for GetOrLoad, Reload,
	// GetOrLoadBatch (unless BatchLoader covers it) and refresh; Updater is
	// required for Update.
	Loader      Loader[V]
	BatchLoader BatchLoader[V]
	Updater     Updater[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	DefaultTTL time.Duration // remote entries; 0 => 10m
	LocalTTL   time.Duration // local entry cap, clamped to DefaultTTL; 0 => 1m

	Negative  NegativeCachingOptions
	Locks     LockOptions
	Refresh   RefreshOptions
	Telemetry TelemetryOptions

	ComputeSetCost SetCostFunc // local tier cost; default 1
	Disabled       bool        // default false (enabled)
}

// New builds a Cache from opts.
func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}

// KeyOf encodes a composite user key from its parts deterministically.
// Single string parts pass through unchanged.
func KeyOf(parts ...any) string {
	return keys.Join(parts...)
}
