// Package remote defines the shared remote tier storage abstraction.
//
// Implementations must be safe for concurrent use and byte-for-byte
// transparent: Get must return exactly the []byte previously passed to Set
// for the same key. The keyspaces "<ns>:" and "lock:<ns>:" are owned by
// stratacache; external code must not write values under these prefixes.
package remote

import (
	"context"
	"time"
)

// Store is a remote key-value store with TTLs and primitive mutual exclusion.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// Transport or server errors are returned as (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if the key is absent. Reports whether the
	// write took effect.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes a key. Reports whether an entry was deleted.
	Del(ctx context.Context, key string) (bool, error)

	// MGet returns one slot per requested key, in order. A nil slot is a miss.
	MGet(ctx context.Context, keys []string) ([][]byte, error)

	// MDel removes the given keys and returns how many were deleted.
	MDel(ctx context.Context, keys []string) (int64, error)

	// TakeLock atomically binds lockKey to token with TTL guard, only if
	// lockKey is absent. Reports whether the lock was acquired.
	TakeLock(ctx context.Context, lockKey, token string, guard time.Duration) (bool, error)

	// ReleaseLock deletes lockKey only if its current value equals token.
	// Reports whether the lock was released by this call.
	ReleaseLock(ctx context.Context, lockKey, token string) (bool, error)

	// Ping measures a store round-trip.
	Ping(ctx context.Context) (time.Duration, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
