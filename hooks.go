package stratacache

import (
	"time"

	"github.com/unkn0wn-root/stratacache/local"
)

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the cache calls them on
// hot paths (wrap with hooks/async to offload expensive sinks).
//
// Key arguments honor TelemetryOptions: with RecordKeys off they arrive
// empty, and sizes arrive as 0 with RecordValueSize off.
type Hooks interface {
	// Tier reads. Subject to TelemetryOptions.SamplingRatio.
	LocalHit(key string)
	LocalMiss(key string)
	RemoteHit(key string)
	RemoteMiss(key string)

	// A value (or tombstone) was written to the local tier.
	LocalSet(key string, size int)

	// A value (or tombstone) was written to the remote tier.
	// Used for secondary-index maintenance, pub/sub notification, audit.
	RemoteSet(key string, size int, ttl time.Duration)

	// The local tier dropped an entry. Refresh tracking stops for every
	// reason except local.Replaced.
	Eviction(key string, reason local.EvictionReason)

	// A lock wait elapsed (or lock transport failed) and the engine
	// continued on the unlocked path. remote=false is the in-process slot.
	LockDowngrade(key string, remote bool)

	// A cache-layer error was absorbed to preserve availability.
	// op ∈ {"get.remote", "get.decode", "put.encode", "put.remote",
	// "invalidate.remote", "batch.remote", "lock.take", "lock.release",
	// "refresh.load"}.
	AbsorbedError(op, key string, err error)

	// A background refresh completed for key.
	Refreshed(key string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LocalHit(string)                       {}
func (NopHooks) LocalMiss(string)                      {}
func (NopHooks) RemoteHit(string)                      {}
func (NopHooks) RemoteMiss(string)                     {}
func (NopHooks) LocalSet(string, int)                  {}
func (NopHooks) RemoteSet(string, int, time.Duration)  {}
func (NopHooks) Eviction(string, local.EvictionReason) {}
func (NopHooks) LockDowngrade(string, bool)            {}
func (NopHooks) AbsorbedError(string, string, error)   {}
func (NopHooks) Refreshed(string)                      {}
