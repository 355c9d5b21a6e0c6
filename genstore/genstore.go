// Package genstore keeps a monotonically increasing generation per read-model key.
//
// A reader snapshots the generation before loading from the database and
// stores its result tagged with that snapshot. Invalidation bumps the
// generation, so a load that raced with a write can never be stored as fresh.
package genstore

import (
	"context"
	"time"
)

// Store abstracts where generations live. Local keeps them in-process;
// Redis shares them between replicas.
type Store interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes entries idle for longer than retention (no-op where the
	// backend expires keys itself).
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
