package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/unkn0wn-root/tally"
	"github.com/unkn0wn-root/tally/internal/app"
	"github.com/unkn0wn-root/tally/internal/database"
	"github.com/unkn0wn-root/tally/internal/server"
	tallyzap "github.com/unkn0wn-root/tally/log/zap"
	"github.com/unkn0wn-root/tally/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Backends *app.Backends
	Hooks    *app.Hooks
	Cache    *tally.Cache
	Service  *server.Service
	Router   *gin.Engine
}

// bootstrapRuntime opens the database and cache backends and builds the router.
// reg receives the hook collectors and serves /metrics.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger, reg *prometheus.Registry) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Backends, err = app.OpenBackends(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache backends: %w", err)
	}
	if err := stack.Backends.Ping(ctx); err != nil {
		// fail-open: counters fall back to durable rows until redis is back
		log.Warn("redis unavailable; cache reads will miss", zap.Error(err))
	}

	stack.Hooks, err = app.NewHooks(cfg.Metrics, reg, slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	if err != nil {
		return nil, fmt.Errorf("initialise hooks: %w", err)
	}

	stack.Cache, err = tally.NewCache(tally.Options{
		Provider: stack.Backends.Provider,
		Logger:   tallyzap.New(logger.WithModule("cache")),
		Hooks:    stack.Hooks,
		Disabled: cfg.Cache.Disabled,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise cache: %w", err)
	}
	log.Info("cache ready",
		zap.String("backend", cfg.Cache.Backend),
		zap.String("genstore", cfg.Cache.Genstore.Kind),
		zap.Bool("enabled", stack.Cache.Enabled()),
	)

	deps := server.Deps{
		DB:        stack.DB,
		Cache:     stack.Cache,
		Gens:      stack.Backends.Gens,
		Keyspace:  tally.Keyspace{App: cfg.Cache.App},
		Hooks:     stack.Hooks,
		Codec:     cfg.Cache.ReadModel.Codec,
		MaxDecode: cfg.Cache.ReadModel.MaxDecode,
		Checks:    map[string]func(context.Context) error{"cache": stack.Backends.Ping},
		Log:       logger.WithModule("server"),
	}
	if cfg.Metrics.Enabled {
		deps.MetricsPath = cfg.Metrics.Endpoint
		deps.Gatherer = reg
	}
	stack.Service, err = server.New(deps)
	if err != nil {
		return nil, fmt.Errorf("initialise service: %w", err)
	}
	stack.Router = stack.Service.Router()

	success = true
	return stack, nil
}

// Shutdown releases everything bootstrapRuntime opened; safe on a partial stack.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}
	var err error
	if s.Hooks != nil {
		s.Hooks.Close()
	}
	// Backends owns the provider the cache wraps; the cache is not closed separately
	if s.Backends != nil {
		if cerr := s.Backends.Close(ctx); cerr != nil {
			log.Warn("cache backends shutdown", zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
		s.Backends = nil
	}
	if s.DB != nil {
		err = multierr.Append(err, closeDatabase(s.DB, log))
		s.DB = nil
	}
	return err
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}
	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var conn app.DBConnConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		conn = cfg.Database.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		conn = cfg.Database.MySQL
	default:
		// surfaced as an unsupported driver by database.Open
		return dbCfg
	}
	dbCfg.Host = strings.TrimSpace(conn.Host)
	dbCfg.Port = conn.Port
	dbCfg.Name = strings.TrimSpace(conn.Database)
	dbCfg.User = strings.TrimSpace(conn.Username)
	dbCfg.Password = strings.TrimSpace(conn.Password)
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) error {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
		return err
	}
	return nil
}
