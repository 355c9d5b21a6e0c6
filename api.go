package tally

import (
	"context"
	"time"

	pr "github.com/unkn0wn-root/tally/provider"
)

// Backend is the uniform cache contract every request-scoped caller depends on.
// *Cache implements it over any provider.Provider. All methods are fail-open:
// provider errors come back as a miss or false, never as an error.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string) bool
	Update(ctx context.Context, key, value string) bool
	Remove(ctx context.Context, key string) bool
	RemoveStartingWith(ctx context.Context, prefix string) bool
	Incr(ctx context.Context, key string) bool
	Decr(ctx context.Context, key string) bool
}

var _ Backend = (*Cache)(nil)

// Options configure a Cache. Only Provider is required.
type Options struct {
	Provider pr.Provider

	Logger   Logger           // if nil, NopLogger is used
	Hooks    Hooks            // if nil, NopHooks is used
	Clock    func() time.Time // timed envelope clock; nil => time.Now
	Disabled bool             // every read misses, every write reports false
}

// Options for the reconciler bound to a fixed set of counters.
type ReconcilerOptions struct {
	// Required
	Cache    *Cache
	Keyspace Keyspace
	Counters []Counter // fixed at construction; names must be unique

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, the Cache's hooks are used
}

// coalesce picks def for an unset option. Interface options compare against
// nil only, so slice-backed Hooks such as promhooks.Multi are safe here.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
