package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tally/internal/util"
	pr "github.com/unkn0wn-root/tally/provider"
)

type Provider struct {
	c     *bc.BigCache
	locks util.Striped
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 7 days
	CleanWindow        time.Duration
	Shards             int // power of two; 0 => bigcache default
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 7 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) (string, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// Set ignores per-key TTL; BigCache only knows its global LifeWindow.
func (p *Provider) Set(_ context.Context, key, value string) error {
	return p.c.Set(key, []byte(value))
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// DelPrefix walks the shard iterator, collects matches, then deletes them.
func (p *Provider) DelPrefix(_ context.Context, prefix string) (int, error) {
	var victims []string
	it := p.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			// entry vanished between SetNext and Value
			continue
		}
		if k := info.Key(); strings.HasPrefix(k, prefix) {
			victims = append(victims, k)
		}
	}
	removed := 0
	for _, k := range victims {
		err := p.c.Delete(k)
		if err == nil {
			removed++
			continue
		}
		if !errors.Is(err, bc.ErrEntryNotFound) {
			return removed, err
		}
	}
	return removed, nil
}

func (p *Provider) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	unlock := p.locks.Lock(key)
	defer unlock()

	cur, _, err := p.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n := pr.ParseCount(cur) + delta
	if err := p.c.Set(key, []byte(pr.FormatCount(n))); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}

// Len reports the number of entries currently held.
func (p *Provider) Len() int { return p.c.Len() }
