package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "redis", cfg.Cache.Backend)
	require.Equal(t, "social", cfg.Cache.App)
	require.Equal(t, "10.0.0.5:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 750*time.Millisecond, cfg.Cache.Redis.Timeout)
	require.Equal(t, 48*time.Hour, cfg.Cache.Redis.TTL)
	require.Equal(t, "redis", cfg.Cache.Genstore.Kind)
	require.Equal(t, 24*time.Hour, cfg.Cache.Genstore.TTL)
	require.Equal(t, "cbor", cfg.Cache.ReadModel.Codec)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	require.Equal(t, 5432, cfg.Database.Postgres.Port)
	require.False(t, cfg.Metrics.Enabled)

	// untouched sections keep their defaults
	require.Equal(t, int64(100_000), cfg.Cache.Memory.MaxEntries)
	require.Equal(t, "/metrics", cfg.Metrics.Endpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, "tally", cfg.Cache.App)
	require.Equal(t, "local", cfg.Cache.Genstore.Kind)
	require.Equal(t, 7*24*time.Hour, cfg.Cache.Redis.TTL)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "tally", cfg.Metrics.Namespace)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TALLY_CACHE_BACKEND", "bigcache")
	t.Setenv("TALLY_SERVER_PORT", "7001")
	t.Setenv("TALLY_CACHE_GENSTORE_RETENTION", "90m")

	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)
	require.Equal(t, "bigcache", cfg.Cache.Backend)
	require.Equal(t, 7001, cfg.Server.Port)
	require.Equal(t, 90*time.Minute, cfg.Cache.Genstore.Retention)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Cache: CacheConfig{Backend: "memory", App: "a", Genstore: GenstoreConfig{Kind: "local"}}}
	}
	require.NoError(t, func() error { c := base(); return c.Validate() }())
	require.NoError(t, func() error {
		c := base()
		c.Cache.Genstore.Retention = 2 * time.Hour
		return c.Validate()
	}())

	cases := map[string]func(*Config){
		"unknown backend":     func(c *Config) { c.Cache.Backend = "memcached" },
		"remote without url":  func(c *Config) { c.Cache.Backend = "remote" },
		"unknown genstore":    func(c *Config) { c.Cache.Genstore.Kind = "etcd" },
		"empty app":           func(c *Config) { c.Cache.App = " " },
		"short retention":     func(c *Config) { c.Cache.Genstore.Retention = 30 * time.Minute },
		"retention at window": func(c *Config) { c.Cache.Genstore.Retention = time.Hour },
		"short redis ttl": func(c *Config) {
			c.Cache.Genstore.Kind = "redis"
			c.Cache.Genstore.TTL = 10 * time.Minute
		},
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mut(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("TALLY_CACHE_BACKEND", "memcached")
	_, err := LoadConfig(t.TempDir())
	require.ErrorContains(t, err, "memcached")
}
