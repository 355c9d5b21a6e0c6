package tally

import (
	"context"
	"errors"
	"time"

	pr "github.com/unkn0wn-root/tally/provider"
)

// Cache is the fail-open facade over exactly one provider. It is safe for
// concurrent use and meant to be constructed once per process and passed down.
type Cache struct {
	provider pr.Provider
	log      Logger
	hooks    Hooks
	now      func() time.Time
	enabled  bool
}

func NewCache(opts Options) (*Cache, error) {
	if opts.Provider == nil {
		return nil, errors.New("tally: provider is required")
	}
	c := &Cache{
		provider: opts.Provider,
		enabled:  !opts.Disabled,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		now:      opts.Clock,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Cache) Enabled() bool { return c.enabled }

func (c *Cache) Close(ctx context.Context) error {
	return c.provider.Close(ctx)
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	v, ok, err := c.provider.Get(ctx, key)
	if err != nil {
		c.failed("get", key, err)
		return "", false
	}
	return v, ok
}

func (c *Cache) Set(ctx context.Context, key, value string) bool {
	if !c.enabled {
		return false
	}
	if err := c.provider.Set(ctx, key, value); err != nil {
		c.failed("set", key, err)
		return false
	}
	return true
}

// Update is an idempotent overwrite; same as Set.
func (c *Cache) Update(ctx context.Context, key, value string) bool {
	return c.Set(ctx, key, value)
}

func (c *Cache) Remove(ctx context.Context, key string) bool {
	if !c.enabled {
		return false
	}
	if err := c.provider.Del(ctx, key); err != nil {
		c.failed("remove", key, err)
		return false
	}
	return true
}

// RemoveStartingWith removes every key beginning with prefix. An empty prefix
// would match the whole keyspace and is refused.
func (c *Cache) RemoveStartingWith(ctx context.Context, prefix string) bool {
	if !c.enabled {
		return false
	}
	if prefix == "" {
		c.log.Warn("refusing prefix removal with empty prefix", nil)
		return false
	}
	n, err := c.provider.DelPrefix(ctx, prefix)
	if err != nil {
		c.failed("remove_prefix", prefix, err)
		return false
	}
	c.log.Debug("prefix removed", Fields{"prefix": prefix, "removed": n})
	return true
}

// Incr adds one to the integer at key. A missing or unparsable value counts as
// zero, so the first Incr stores 1 on every provider.
func (c *Cache) Incr(ctx context.Context, key string) bool {
	_, ok := c.add(ctx, "incr", key, 1)
	return ok
}

// Decr subtracts one; a missing value counts as zero.
func (c *Cache) Decr(ctx context.Context, key string) bool {
	_, ok := c.add(ctx, "decr", key, -1)
	return ok
}

// Add applies delta and reports the resulting value.
func (c *Cache) Add(ctx context.Context, key string, delta int64) (int64, bool) {
	op := "incr"
	if delta < 0 {
		op = "decr"
	}
	return c.add(ctx, op, key, delta)
}

func (c *Cache) add(ctx context.Context, op, key string, delta int64) (int64, bool) {
	if !c.enabled {
		return 0, false
	}
	n, err := c.provider.IncrBy(ctx, key, delta)
	if err != nil {
		c.failed(op, key, err)
		return 0, false
	}
	return n, true
}

func (c *Cache) failed(op, key string, err error) {
	c.hooks.BackendError(op, key, err)
	c.log.Warn("cache operation failed; treating as miss", Fields{"op": op, "key": key, "err": err})
}
