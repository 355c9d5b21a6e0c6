// Package provider defines the storage abstraction used by tally.
//
// A Provider is a plain string key/value store. Values are opaque: Get must
// return exactly the string previously passed to Set (no prepended metadata, no
// re-encoding). Counters are stored as base-10 text so every provider can
// increment them, and timed envelopes are stored as framed bytes inside the
// string.
//
// Providers report failures precisely (error returns). The fail-open policy
// (errors folded into miss/false) lives one level up in tally.Cache.
package provider

import (
	"context"
	"errors"
	"strconv"
)

// ErrRejected is returned by Set when the store refused the write under
// pressure (admission policy, full shard). Callers treat it like any other
// failed write.
var ErrRejected = errors.New("provider: write rejected")

// Provider must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; ("", false, nil) on miss.
	// If an IO/remote error happens, return ("", false, err).
	Get(ctx context.Context, key string) (string, bool, error)

	// Set overwrites value. Providers with native expiry apply their default TTL.
	Set(ctx context.Context, key, value string) error

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// DelPrefix removes every key whose text starts with prefix and returns how
	// many keys were removed (best-effort count).
	DelPrefix(ctx context.Context, prefix string) (int, error)

	// IncrBy parses the current value as an integer (absent or unparsable => 0),
	// adds delta, stores the result as text and returns it. A missing key is
	// initialised, never skipped.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// ParseCount is the shared integer parsing rule for IncrBy implementations:
// absent or unparsable text counts as zero.
func ParseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// FormatCount renders a counter value the way every provider stores it.
func FormatCount(n int64) string { return strconv.FormatInt(n, 10) }
