package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tally/internal/app"
	"github.com/unkn0wn-root/tally/kvd"
	"github.com/unkn0wn-root/tally/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	addr       string
	path       string
	bucket     string
	defaultTTL time.Duration
	logLevel   string
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("kvd", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var o options
	fs.StringVar(&o.addr, "addr", ":7070", "Listen address")
	fs.StringVar(&o.path, "path", "./data/kvd.db", "bbolt database file")
	fs.StringVar(&o.bucket, "bucket", "kv", "bbolt bucket name")
	fs.DurationVar(&o.defaultTTL, "default-ttl", 0, "Expiry for puts without ttl_seconds (0 = never)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.path == "" {
		return o, errors.New("--path is required")
	}
	return o, nil
}

func run(ctx context.Context, args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(o.logLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort
	log := logger.WithModule("kvd")

	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := kvd.Open(o.path, kvd.Options{Bucket: o.bucket, DefaultTTL: o.defaultTTL})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close", zap.Error(err))
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              o.addr,
		Handler:           kvd.NewRouter(store, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("kvd listening", zap.String("addr", o.addr), zap.String("path", o.path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("kvd stopped")
	return nil
}
