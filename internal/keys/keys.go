// Package keys builds the storage and lock keys used across both tiers.
//
// The keyspaces "<ns>:" and "lock:<ns>:" are owned by stratacache. External
// code must not write values under these prefixes.
package keys

import (
	"fmt"
	"strings"
)

// Full returns the tier storage key for a user key within a namespace.
func Full(ns, userKey string) string {
	return ns + ":" + userKey
}

// Lock returns the remote-lock key paired with Full(ns, userKey).
func Lock(ns, userKey string) string {
	return "lock:" + ns + ":" + userKey
}

// Join encodes a composite user key from its parts. Parts are rendered with
// their default textual form and joined with "/". The encoding is
// deterministic for a given part sequence; callers needing a different
// ordering guarantee should pre-encode the key themselves.
func Join(parts ...any) string {
	if len(parts) == 1 {
		if s, ok := parts[0].(string); ok {
			return s
		}
	}
	b := make([]string, len(parts))
	for i, p := range parts {
		b[i] = fmt.Sprint(p)
	}
	return strings.Join(b, "/")
}
