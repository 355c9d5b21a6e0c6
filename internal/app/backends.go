package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/unkn0wn-root/tally/genstore"
	pr "github.com/unkn0wn-root/tally/provider"
	bcp "github.com/unkn0wn-root/tally/provider/bigcache"
	rp "github.com/unkn0wn-root/tally/provider/redis"
	"github.com/unkn0wn-root/tally/provider/remote"
	rcp "github.com/unkn0wn-root/tally/provider/ristretto"
)

// Backends are the cache provider and generation store built from CacheConfig.
// When both use redis they share one client, owned here.
type Backends struct {
	Provider pr.Provider
	Gens     genstore.Store

	redis goredis.UniversalClient
}

// RedisOptions converts the redis section into go-redis options.
func (c CacheConfig) RedisOptions() *goredis.Options {
	return &goredis.Options{
		Addr:         strings.TrimSpace(c.Redis.Address),
		Username:     c.Redis.Username,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		DialTimeout:  c.Redis.Timeout,
		ReadTimeout:  c.Redis.Timeout,
		WriteTimeout: c.Redis.Timeout,
	}
}

func (c CacheConfig) needsRedis() bool {
	return strings.EqualFold(c.Backend, "redis") || strings.EqualFold(c.Genstore.Kind, "redis")
}

// OpenBackends builds the configured provider and generation store. Nothing
// here dials: an unreachable redis shows up as fail-open misses later, or
// through Ping.
func OpenBackends(cfg CacheConfig) (*Backends, error) {
	b := &Backends{}
	if cfg.needsRedis() {
		b.redis = goredis.NewClient(cfg.RedisOptions())
	}
	ok := false
	defer func() {
		if !ok {
			_ = b.Close(context.Background())
		}
	}()

	var err error
	if b.Provider, err = openProvider(cfg, b.redis); err != nil {
		return nil, err
	}
	if b.Gens, err = openGenstore(cfg, b.redis); err != nil {
		return nil, err
	}
	ok = true
	return b, nil
}

func openProvider(cfg CacheConfig, rdb goredis.UniversalClient) (pr.Provider, error) {
	var (
		p   pr.Provider
		err error
	)
	// assign only on success so a failed constructor never yields a typed nil
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		var r *rp.Redis
		if r, err = rp.New(rp.Config{Client: rdb, TTL: cfg.Redis.TTL}); err == nil {
			p = r
		}
	case "memory", "":
		var r *rcp.Provider
		if r, err = rcp.New(rcp.Config{MaxEntries: cfg.Memory.MaxEntries, Metrics: cfg.Memory.Metrics}); err == nil {
			p = r
		}
	case "bigcache":
		var b *bcp.Provider
		b, err = bcp.New(bcp.Config{
			LifeWindow:         cfg.BigCache.LifeWindow,
			CleanWindow:        cfg.BigCache.CleanWindow,
			Shards:             cfg.BigCache.Shards,
			MaxEntrySize:       cfg.BigCache.MaxEntrySize,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxMB,
		})
		if err == nil {
			p = b
		}
	case "remote":
		var r *remote.Remote
		r, err = remote.New(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Timeout: cfg.Remote.Timeout,
			TTL:     cfg.Remote.TTL,
		})
		if err == nil {
			p = r
		}
	default:
		err = fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return p, nil
}

func openGenstore(cfg CacheConfig, rdb goredis.UniversalClient) (genstore.Store, error) {
	switch strings.ToLower(cfg.Genstore.Kind) {
	case "local", "":
		return genstore.NewLocal(cfg.Genstore.CleanupInterval, cfg.Genstore.Retention), nil
	case "redis":
		g, err := genstore.NewRedis(genstore.RedisConfig{
			Client:    rdb,
			Namespace: cfg.App,
			TTL:       cfg.Genstore.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("cache: unsupported genstore %q", cfg.Genstore.Kind)
	}
}

// Ping checks the shared redis client, if any.
func (b *Backends) Ping(ctx context.Context) error {
	if b == nil || b.redis == nil {
		return nil
	}
	return b.redis.Ping(ctx).Err()
}

// Close releases the provider, the generation store and the shared client.
func (b *Backends) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	var err error
	if b.Provider != nil {
		err = multierr.Append(err, b.Provider.Close(ctx))
	}
	if b.Gens != nil {
		err = multierr.Append(err, b.Gens.Close(ctx))
	}
	if b.redis != nil {
		err = multierr.Append(err, b.redis.Close())
		b.redis = nil
	}
	return err
}
