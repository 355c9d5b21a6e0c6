// Package readmodel caches per-entity read-models (a profile view, a card)
// behind the timed envelope and guards every write with a generation.
//
// Write path:
//
//	obs, _ := rm.SnapshotGen(ctx, id) // before the database read
//	v := load(id)
//	rm.SetWithGen(ctx, id, v, obs)    // stored only if nothing invalidated id meanwhile
//
// Invalidate bumps the generation and removes the entity's keys, so a load
// that raced with an update is never served as fresh.
package readmodel

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/unkn0wn-root/tally"
	"github.com/unkn0wn-root/tally/codec"
	"github.com/unkn0wn-root/tally/genstore"
	"github.com/unkn0wn-root/tally/internal/wire"
)

// Options configure a Cache. Cache, Gens, Codec, Keyspace and Subsystem are required.
type Options[V any] struct {
	Cache     *tally.Cache
	Gens      genstore.Store
	Codec     codec.Codec[V]
	Keyspace  tally.Keyspace
	Subsystem string // e.g. "profiles" => <app>.profiles:<id>

	MaxDecode int          // >0 rejects larger payloads before decoding
	Logger    tally.Logger // if nil, NopLogger is used
	Hooks     tally.Hooks  // if nil, NopHooks is used
}

type Cache[V any] struct {
	cache *tally.Cache
	gens  genstore.Store
	codec taggedCodec[V]
	keys  tally.Keyspace
	sub   string
	log   tally.Logger
	hooks tally.Hooks
}

func New[V any](opts Options[V]) (*Cache[V], error) {
	switch {
	case opts.Cache == nil:
		return nil, errors.New("readmodel: cache is required")
	case opts.Gens == nil:
		return nil, errors.New("readmodel: generation store is required")
	case opts.Codec == nil:
		return nil, errors.New("readmodel: codec is required")
	case opts.Keyspace.App == "" || opts.Subsystem == "":
		return nil, errors.New("readmodel: keyspace app and subsystem are required")
	}
	var inner codec.Codec[V] = opts.Codec
	if opts.MaxDecode > 0 {
		inner = codec.LimitCodec[V]{Inner: opts.Codec, MaxDecode: opts.MaxDecode}
	}
	c := &Cache[V]{
		cache: opts.Cache,
		gens:  opts.Gens,
		codec: taggedCodec[V]{inner: inner},
		keys:  opts.Keyspace,
		sub:   opts.Subsystem,
		log:   tally.NopLogger{},
		hooks: tally.NopHooks{},
	}
	if opts.Logger != nil {
		c.log = opts.Logger
	}
	if opts.Hooks != nil {
		c.hooks = opts.Hooks
	}
	return c, nil
}

// Key is the primary cache key of entity id.
func (c *Cache[V]) Key(id string) string { return c.keys.Key(c.sub, id) }

// FacetKey is the key of a derived read-model of entity id.
func (c *Cache[V]) FacetKey(id, facet string) string { return c.keys.Derived(c.sub, id, facet) }

// SnapshotGen returns the generation to pass to SetWithGen. Take it before
// reading the database.
func (c *Cache[V]) SnapshotGen(ctx context.Context, id string) (uint64, error) {
	return c.gens.Snapshot(ctx, c.Key(id))
}

// Get returns the cached read-model of id if it is fresh and was stored
// under the current generation.
func (c *Cache[V]) Get(ctx context.Context, id string) (V, bool) {
	return c.get(ctx, id, c.Key(id))
}

// GetFacet is Get for a derived read-model; facets share the entity's generation.
func (c *Cache[V]) GetFacet(ctx context.Context, id, facet string) (V, bool) {
	return c.get(ctx, id, c.FacetKey(id, facet))
}

// SetWithGen stores v only if the generation of id still equals obs.
// It reports whether v was stored.
func (c *Cache[V]) SetWithGen(ctx context.Context, id string, v V, obs uint64) bool {
	return c.set(ctx, id, c.Key(id), v, obs)
}

func (c *Cache[V]) SetFacetWithGen(ctx context.Context, id, facet string, v V, obs uint64) bool {
	return c.set(ctx, id, c.FacetKey(id, facet), v, obs)
}

// Invalidate bumps the generation of id, then removes its primary and facet
// keys. Either step alone is enough to stop a stale value being served; the
// returned error is non-nil only when both failed.
func (c *Cache[V]) Invalidate(ctx context.Context, id string) error {
	key := c.Key(id)
	_, bumpErr := c.gens.Bump(ctx, key)
	if bumpErr != nil {
		bumpErr = fmt.Errorf("bump generation: %w", bumpErr)
	}

	var delErr error
	if !c.cache.Remove(ctx, key) {
		delErr = multierr.Append(delErr, errors.New("remove "+key))
	}
	if !c.cache.RemoveStartingWith(ctx, c.keys.DerivedPrefix(c.sub, id)) {
		delErr = multierr.Append(delErr, errors.New("remove facets of "+key))
	}

	switch {
	case bumpErr != nil && delErr != nil:
		err := multierr.Combine(bumpErr, delErr)
		c.hooks.InvalidateFailed(key, err)
		c.log.Error("read-model invalidation failed", tally.Fields{"key": key, "err": err})
		return err
	case bumpErr != nil:
		c.log.Warn("generation bump failed; keys removed", tally.Fields{"key": key, "err": bumpErr})
	case delErr != nil:
		c.log.Debug("key removal failed; generation bumped", tally.Fields{"key": key, "err": delErr})
	}
	return nil
}

// GetOrLoad serves id from the cache or loads it and stores it under the
// generation observed before load ran.
func (c *Cache[V]) GetOrLoad(ctx context.Context, id string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ctx, id); ok {
		return v, nil
	}
	obs, genErr := c.SnapshotGen(ctx, id)
	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	if genErr != nil {
		c.log.Warn("generation snapshot failed; not caching", tally.Fields{"key": c.Key(id), "err": genErr})
		return v, nil
	}
	c.SetWithGen(ctx, id, v, obs)
	return v, nil
}

func (c *Cache[V]) get(ctx context.Context, id, key string) (V, bool) {
	var zero V
	t, ok := tally.GetTimed[tagged[V]](ctx, c.cache, c.codec, key)
	if !ok {
		return zero, false
	}
	cur, err := c.gens.Snapshot(ctx, c.Key(id))
	if err != nil {
		c.log.Warn("generation snapshot failed; treating as miss", tally.Fields{"key": key, "err": err})
		return zero, false
	}
	if t.Value.gen != cur {
		c.cache.Remove(ctx, key)
		c.hooks.TimedDiscarded(key, "stale")
		return zero, false
	}
	return t.Value.v, true
}

func (c *Cache[V]) set(ctx context.Context, id, key string, v V, obs uint64) bool {
	cur, err := c.gens.Snapshot(ctx, c.Key(id))
	if err != nil {
		c.log.Warn("generation snapshot failed; not caching", tally.Fields{"key": key, "err": err})
		return false
	}
	if cur != obs {
		c.log.Debug("skipping stale read-model write", tally.Fields{"key": key, "observed": obs, "current": cur})
		return false
	}
	return tally.SetTimed[tagged[V]](ctx, c.cache, c.codec, key, tagged[V]{gen: obs, v: v})
}

// tagged is a value plus the generation it was loaded under.
type tagged[V any] struct {
	gen uint64
	v   V
}

type taggedCodec[V any] struct{ inner codec.Codec[V] }

func (c taggedCodec[V]) Encode(t tagged[V]) ([]byte, error) {
	p, err := c.inner.Encode(t.v)
	if err != nil {
		return nil, err
	}
	return wire.EncodeGeneration(t.gen, p), nil
}

func (c taggedCodec[V]) Decode(b []byte) (tagged[V], error) {
	gen, p, err := wire.DecodeGeneration(b)
	if err != nil {
		return tagged[V]{}, err
	}
	v, err := c.inner.Decode(p)
	if err != nil {
		return tagged[V]{}, err
	}
	return tagged[V]{gen: gen, v: v}, nil
}
