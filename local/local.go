// Package local defines the in-process tier storage abstraction.
//
// Implementations must be safe for concurrent use and byte-for-byte
// transparent: Get must return exactly the []byte previously passed to Set
// for the same key. Entries carry an individual TTL where the backing store
// supports one.
package local

import (
	"context"
	"time"
)

// EvictionReason describes why an entry left the store.
type EvictionReason uint8

const (
	// Expired - the entry's TTL elapsed.
	Expired EvictionReason = iota
	// Capacity - the store dropped the entry under size pressure.
	Capacity
	// Replaced - a newer value was written over the entry.
	Replaced
	// Explicit - the entry was removed by a Del call.
	Explicit
	// Other - any removal the backing store cannot classify.
	Other
)

func (r EvictionReason) String() string {
	switch r {
	case Expired:
		return "expired"
	case Capacity:
		return "capacity"
	case Replaced:
		return "replaced"
	case Explicit:
		return "explicit"
	default:
		return "other"
	}
}

// EvictionHook observes entry removals. Implementations must be cheap and
// non-blocking; stores call it from eviction paths.
type EvictionHook func(key string, reason EvictionReason)

// Store is a bounded byte store with per-entry TTL and eviction callbacks.
type Store interface {
	// Get returns (value, true) on hit; (nil, false) on miss or after expiry.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value with the given TTL and cost. ttl <= 0 means no expiry.
	// Returns ok=false when the store refused the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) bool

	// Del removes a key. Reports whether an entry was present. Stores that
	// cannot tell report true.
	Del(ctx context.Context, key string) bool

	// OnEvict installs the eviction hook. Must be called once, before the
	// store is used. Stores report the reasons they can observe (at minimum
	// Expired and Capacity); Replaced and Explicit are raised by the engine
	// on its own overwrite/remove paths.
	OnEvict(hook EvictionHook)

	// Close releases resources.
	Close() error
}
