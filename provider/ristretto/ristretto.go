package ristretto

import (
	"context"
	"errors"
	"strings"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tally/internal/util"
	pr "github.com/unkn0wn-root/tally/provider"
)

// Provider is the in-process bounded cache. Every entry costs 1, so MaxCost is
// the maximum number of live entries; TinyLFU decides what stays under
// pressure. There is no per-key expiry: freshness comes from timed envelopes.
//
// An entry can disappear at any moment because of eviction. A miss is a normal
// outcome, not an error.
type Provider struct {
	c     *rc.Cache
	index sync.Map // key -> *entry currently stored for that key
	locks util.Striped
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	MaxEntries  int64 // capacity in entries (MaxCost with cost=1)
	NumCounters int64 // 0 => 10 * MaxEntries
	BufferItems int64 // 0 => 64
	Metrics     bool
}

// entry keeps the string key next to the value so eviction callbacks (which
// only see key hashes) can keep the prefix index exact.
type entry struct {
	key   string
	value string
}

func New(cfg Config) (*Provider, error) {
	if cfg.MaxEntries <= 0 {
		return nil, errors.New("ristretto: MaxEntries must be > 0")
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 10 * cfg.MaxEntries
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	p := &Provider{}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxEntries,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		// cost counts entries, not bytes
		IgnoreInternalCost: true,
		OnEvict:            p.forget,
		OnReject:           p.forget,
	})
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func (p *Provider) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return "", false, nil
	}
	e, _ := v.(*entry)
	if e == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		p.index.Delete(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (p *Provider) Set(_ context.Context, key, value string) error {
	return p.store(key, value)
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.index.Delete(key)
	return nil
}

// DelPrefix filters the live key index; no scan of the cache itself.
func (p *Provider) DelPrefix(_ context.Context, prefix string) (int, error) {
	var victims []string
	p.index.Range(func(k, _ any) bool {
		if s := k.(string); strings.HasPrefix(s, prefix) {
			victims = append(victims, s)
		}
		return true
	})
	for _, k := range victims {
		p.c.Del(k)
		p.index.Delete(k)
	}
	p.c.Wait()
	return len(victims), nil
}

func (p *Provider) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	unlock := p.locks.Lock(key)
	defer unlock()

	cur, _, _ := p.Get(ctx, key)
	n := pr.ParseCount(cur) + delta
	if err := p.store(key, pr.FormatCount(n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto counters if enabled (not part of pr.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

func (p *Provider) store(key, value string) error {
	e := &entry{key: key, value: value}
	p.index.Store(key, e)
	if !p.c.Set(key, e, 1) {
		p.index.CompareAndDelete(key, e)
		return pr.ErrRejected
	}
	// ristretto applies sets asynchronously; wait so the next Get sees it
	p.c.Wait()
	return nil
}

// forget drops the index entry only if it still points at the evicted value,
// so a newer Set of the same key keeps its slot.
func (p *Provider) forget(item *rc.Item) {
	if e, ok := item.Value.(*entry); ok {
		p.index.CompareAndDelete(e.key, e)
	}
}
