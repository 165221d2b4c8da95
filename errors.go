package stratacache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("stratacache: cache is closed")

	// ErrNoLoader is returned by load-through operations when no data-source
	// loader was configured.
	ErrNoLoader = errors.New("stratacache: no loader configured")

	// ErrNoUpdater is returned by Update when no data-source updater was
	// configured.
	ErrNoUpdater = errors.New("stratacache: no updater configured")

	// ErrRemoteDisabled is returned by operations that require the remote
	// tier when none is configured.
	ErrRemoteDisabled = errors.New("stratacache: remote tier disabled")

	// ErrLockTimeout reports that a lock wait budget elapsed. Callers inside
	// the engine handle it by downgrading to an unlocked path; it is not
	// fatal.
	ErrLockTimeout = errors.New("stratacache: lock wait budget exceeded")
)

// SerializationError reports a codec failure for a cached value.
type SerializationError struct {
	Key string
	Op  string // "encode" or "decode"
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("stratacache: %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// RemoteError reports a remote tier transport or server failure.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("stratacache: remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
