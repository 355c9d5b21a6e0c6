package tally

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// RowReader reads the durable value of one counter column for an entity.
type RowReader func(ctx context.Context, id string) (int64, error)

// RowWriter persists a winning value into the durable column for an entity
// (the row-update gateway for that counter).
type RowWriter func(ctx context.Context, id string, value int64) error

// Counter registers one denormalized counter: its cache subsystem name, the
// durable column it mirrors and the gateway closures for that column.
type Counter struct {
	Name   string    // cache subsystem, e.g. "followers" => <app>.followers:<id>
	Column string    // durable column, e.g. "follower_count"
	Read   RowReader // optional; needed only by Refresh
	Write  RowWriter // required
}

// Reconciler binds Reconcile to a fixed registry of counters and one Cache.
type Reconciler struct {
	cache    *Cache
	keys     Keyspace
	counters map[string]Counter
	log      Logger
	hooks    Hooks
}

func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Cache == nil {
		return nil, errors.New("tally: cache is required")
	}
	if opts.Keyspace.App == "" {
		return nil, errors.New("tally: keyspace app is required")
	}
	if len(opts.Counters) == 0 {
		return nil, errors.New("tally: at least one counter is required")
	}
	r := &Reconciler{
		cache:    opts.Cache,
		keys:     opts.Keyspace,
		counters: make(map[string]Counter, len(opts.Counters)),
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, opts.Cache.hooks),
	}
	for _, c := range opts.Counters {
		if c.Name == "" || c.Write == nil {
			return nil, fmt.Errorf("tally: counter %q needs a name and a writer", c.Name)
		}
		if _, dup := r.counters[c.Name]; dup {
			return nil, fmt.Errorf("tally: counter %q registered twice", c.Name)
		}
		r.counters[c.Name] = c
	}
	return r, nil
}

// Names lists registered counters in lexical order.
func (r *Reconciler) Names() []string {
	out := make([]string, 0, len(r.counters))
	for n := range r.counters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Key is the cache key of counter name for entity id.
func (r *Reconciler) Key(name, id string) string { return r.keys.Key(name, id) }

// Incr records one event in the cache only; no durable write happens here.
func (r *Reconciler) Incr(ctx context.Context, name, id string) (bool, error) {
	if _, err := r.counter(name); err != nil {
		return false, err
	}
	return r.cache.Incr(ctx, r.Key(name, id)), nil
}

// Decr is Incr's inverse. Reconciliation keeps the larger side, so a decrement
// only survives once the durable row has caught up with the cache. The cached
// value never drops below zero: a decrement of a missing or zero counter stores 0.
func (r *Reconciler) Decr(ctx context.Context, name, id string) (bool, error) {
	if _, err := r.counter(name); err != nil {
		return false, err
	}
	key := r.Key(name, id)
	n, ok := r.cache.Add(ctx, key, -1)
	if ok && n < 0 {
		ok = r.cache.Set(ctx, key, "0")
	}
	return ok, nil
}

// Cached returns the cached value of a counter; ok=false means nothing usable is cached.
func (r *Reconciler) Cached(ctx context.Context, name, id string) (int64, bool, error) {
	if _, err := r.counter(name); err != nil {
		return 0, false, err
	}
	n, ok := r.readCache(ctx, r.Key(name, id))
	return n, ok, nil
}

// Reconcile converges counter name of entity id given the row value the caller
// already read. See the package-level Reconcile for the rule.
func (r *Reconciler) Reconcile(ctx context.Context, name, id string, rowCount int64) (Result, error) {
	c, err := r.counter(name)
	if err != nil {
		return Result{}, err
	}
	return r.run(ctx, c, id, func(context.Context) (int64, error) { return rowCount, nil })
}

// Refresh reads the row through the registered reader, then reconciles.
func (r *Reconciler) Refresh(ctx context.Context, name, id string) (Result, error) {
	c, err := r.counter(name)
	if err != nil {
		return Result{}, err
	}
	if c.Read == nil {
		return Result{}, fmt.Errorf("tally: counter %q has no row reader", name)
	}
	return r.run(ctx, c, id, func(ctx context.Context) (int64, error) {
		n, err := c.Read(ctx, id)
		if err != nil {
			return 0, &RowReadError{Counter: c.Name, ID: id, Err: err}
		}
		return n, nil
	})
}

// Forget removes every registered counter key of one entity. Entity read-models
// are invalidated by their own cache (see readmodel).
func (r *Reconciler) Forget(ctx context.Context, id string) bool {
	ok := true
	for _, name := range r.Names() {
		ok = r.cache.Remove(ctx, r.Key(name, id)) && ok
	}
	return ok
}

// Flush drops the cached copy of one counter for every entity.
func (r *Reconciler) Flush(ctx context.Context, name string) (bool, error) {
	if _, err := r.counter(name); err != nil {
		return false, err
	}
	return r.cache.RemoveStartingWith(ctx, r.keys.Prefix(name)), nil
}

func (r *Reconciler) run(ctx context.Context, c Counter, id string, readRow func(context.Context) (int64, error)) (Result, error) {
	key := r.Key(c.Name, id)
	res, err := Reconcile(ctx, Ops{
		ReadRow:   readRow,
		ReadCache: func(ctx context.Context) (int64, bool) { return r.readCache(ctx, key) },
		WriteRow: func(ctx context.Context, v int64) error {
			if err := c.Write(ctx, id, v); err != nil {
				return &WriteBackError{Counter: c.Name, ID: id, Column: c.Column, Value: v, Err: err}
			}
			return nil
		},
		WriteCache: func(ctx context.Context, v int64) bool {
			return r.cache.Set(ctx, key, strconv.FormatInt(v, 10))
		},
	})
	if err != nil {
		var wb *WriteBackError
		if errors.As(err, &wb) {
			r.hooks.WriteBackFailed(c.Name, id, wb.Err)
			r.log.Error("counter write-back failed", Fields{"counter": c.Name, "id": id, "value": wb.Value, "err": wb.Err})
		}
		return res, err
	}
	r.hooks.Reconciled(c.Name, res.Outcome, res.Value)
	if res.Outcome == OutcomeCacheRefreshed && !res.CacheWritten {
		r.log.Debug("counter cache refresh not stored", Fields{"counter": c.Name, "id": id})
	}
	return res, nil
}

// readCache treats unparsable text as "no cached value" and removes it so the
// next Incr starts from zero instead of compounding garbage.
func (r *Reconciler) readCache(ctx context.Context, key string) (int64, bool) {
	s, ok := r.cache.Get(ctx, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		r.cache.Remove(ctx, key)
		r.log.Warn("unparsable counter in cache; removed", Fields{"key": key})
		return 0, false
	}
	return n, true
}

func (r *Reconciler) counter(name string) (Counter, error) {
	c, ok := r.counters[name]
	if !ok {
		return Counter{}, &UnknownCounterError{Name: name}
	}
	return c, nil
}
