package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tally/genstore"
	bcp "github.com/unkn0wn-root/tally/provider/bigcache"
	rp "github.com/unkn0wn-root/tally/provider/redis"
	rcp "github.com/unkn0wn-root/tally/provider/ristretto"
)

func TestOpenBackendsMemory(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBackends(CacheConfig{
		Backend:  "memory",
		App:      "t",
		Memory:   MemoryConfig{MaxEntries: 10},
		Genstore: GenstoreConfig{Kind: "local"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close(ctx)) })

	require.IsType(t, &rcp.Provider{}, b.Provider)
	require.IsType(t, &genstore.Local{}, b.Gens)
	require.NoError(t, b.Ping(ctx))

	n, err := b.Provider.IncrBy(ctx, "t.followers:1", 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestOpenBackendsBigCache(t *testing.T) {
	b, err := OpenBackends(CacheConfig{
		Backend:  "bigcache",
		App:      "t",
		BigCache: BigCacheConfig{LifeWindow: time.Hour, Shards: 16},
		Genstore: GenstoreConfig{Kind: "local"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	require.IsType(t, &bcp.Provider{}, b.Provider)
}

func TestOpenBackendsRedisSharesClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	b, err := OpenBackends(CacheConfig{
		Backend:  "redis",
		App:      "social",
		Redis:    RedisConfig{Address: mr.Addr(), Timeout: time.Second, TTL: time.Hour},
		Genstore: GenstoreConfig{Kind: "redis"},
	})
	require.NoError(t, err)
	require.IsType(t, &rp.Redis{}, b.Provider)
	require.IsType(t, &genstore.Redis{}, b.Gens)
	require.NoError(t, b.Ping(ctx))

	require.NoError(t, b.Provider.Set(ctx, "social.followers:1", "4"))
	require.Equal(t, time.Hour, mr.TTL("social.followers:1"))

	g, err := b.Gens.Bump(ctx, "social.profiles:1")
	require.NoError(t, err)
	require.EqualValues(t, 1, g)
	got, err := mr.Get("gen:social:social.profiles:1")
	require.NoError(t, err)
	require.Equal(t, "1", got)

	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))
}

func TestOpenBackendsLocalGensWithRedisOnlyForGens(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := OpenBackends(CacheConfig{
		Backend:  "memory",
		App:      "x",
		Memory:   MemoryConfig{MaxEntries: 10},
		Redis:    RedisConfig{Address: mr.Addr()},
		Genstore: GenstoreConfig{Kind: "redis"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	require.IsType(t, &genstore.Redis{}, b.Gens)
}

func TestOpenBackendsErrors(t *testing.T) {
	_, err := OpenBackends(CacheConfig{Backend: "remote", Genstore: GenstoreConfig{Kind: "local"}})
	require.Error(t, err)

	_, err = OpenBackends(CacheConfig{Backend: "memcached"})
	require.ErrorContains(t, err, "memcached")

	_, err = OpenBackends(CacheConfig{Backend: "memory", Memory: MemoryConfig{MaxEntries: 10}, Genstore: GenstoreConfig{Kind: "etcd"}})
	require.ErrorContains(t, err, "etcd")
}
