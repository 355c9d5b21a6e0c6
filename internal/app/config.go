package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/tally"
)

// Config is the root configuration of the tallyd service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig selects the counter cache backend and the generation store
// used by the read-model cache.
type CacheConfig struct {
	Backend  string `mapstructure:"backend"` // redis | memory | bigcache | remote
	App      string `mapstructure:"app"`     // keyspace prefix
	Disabled bool   `mapstructure:"disabled"`

	Redis     RedisConfig     `mapstructure:"redis"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	BigCache  BigCacheConfig  `mapstructure:"bigcache"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Genstore  GenstoreConfig  `mapstructure:"genstore"`
	ReadModel ReadModelConfig `mapstructure:"readmodel"`
}

type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MemoryConfig struct {
	MaxEntries int64 `mapstructure:"max_entries"`
	Metrics    bool  `mapstructure:"metrics"`
}

type BigCacheConfig struct {
	LifeWindow   time.Duration `mapstructure:"life_window"`
	CleanWindow  time.Duration `mapstructure:"clean_window"`
	Shards       int           `mapstructure:"shards"`
	HardMaxMB    int           `mapstructure:"hard_max_mb"`
	MaxEntrySize int           `mapstructure:"max_entry_size"`
}

type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type GenstoreConfig struct {
	Kind            string        `mapstructure:"kind"` // local | redis
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Retention       time.Duration `mapstructure:"retention"`
	TTL             time.Duration `mapstructure:"ttl"`
}

type ReadModelConfig struct {
	Codec     string `mapstructure:"codec"` // json | msgpack | cbor
	MaxDecode int    `mapstructure:"max_decode"`
}

type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBConnConfig `mapstructure:"postgres"`
	MySQL    DBConnConfig `mapstructure:"mysql"`
}

type DBConnConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Namespace string `mapstructure:"namespace"`
}

// LoadConfig reads config.yaml from ./config and the given paths, applies
// TALLY_* environment overrides and fills defaults. A missing file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects combinations that cannot start.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.Backend) {
	case "redis", "memory", "bigcache":
	case "remote":
		if strings.TrimSpace(c.Cache.Remote.BaseURL) == "" {
			return errors.New("config: cache.remote.base_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}
	// A generation forgotten while an envelope stamped with it is still
	// live would let that stale entry pass the generation check again.
	switch strings.ToLower(c.Cache.Genstore.Kind) {
	case "local":
		if r := c.Cache.Genstore.Retention; r > 0 && r <= tally.ExpireAt {
			return fmt.Errorf("config: cache.genstore.retention %s must exceed the %s entry window", r, tally.ExpireAt)
		}
	case "redis":
		if ttl := c.Cache.Genstore.TTL; ttl > 0 && ttl <= tally.ExpireAt {
			return fmt.Errorf("config: cache.genstore.ttl %s must exceed the %s entry window", ttl, tally.ExpireAt)
		}
	default:
		return fmt.Errorf("config: unknown cache.genstore.kind %q", c.Cache.Genstore.Kind)
	}
	if strings.TrimSpace(c.Cache.App) == "" {
		return errors.New("config: cache.app is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.app", "tally")
	v.SetDefault("cache.disabled", false)

	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.timeout", "2s")
	v.SetDefault("cache.redis.ttl", "168h")

	v.SetDefault("cache.memory.max_entries", 100_000)
	v.SetDefault("cache.memory.metrics", false)

	v.SetDefault("cache.bigcache.life_window", "168h")
	v.SetDefault("cache.bigcache.clean_window", "5m")

	v.SetDefault("cache.remote.base_url", "")
	v.SetDefault("cache.remote.timeout", "2s")

	v.SetDefault("cache.genstore.kind", "local")
	v.SetDefault("cache.genstore.cleanup_interval", "1m")
	v.SetDefault("cache.genstore.retention", "2h")
	v.SetDefault("cache.genstore.ttl", "0s")

	v.SetDefault("cache.readmodel.codec", "json")
	v.SetDefault("cache.readmodel.max_decode", 1<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/tally.sqlite")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.namespace", "tally")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
