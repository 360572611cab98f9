// arbord is the sync server.
//
// It serves the sync protocol on the configured TCP address and, when
// health_listen is set, /health and /ready over HTTP. Configuration is
// read from --config, else from the file named by ARBOR_CONFIG, else the
// built-in defaults are used.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/jacentio/arbor/auth"
	"github.com/jacentio/arbor/config"
	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/server"
	"github.com/jacentio/arbor/sqlstore"
	"github.com/jacentio/arbor/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen string

	flagSet := pflag.NewFlagSet("arbord", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to arbor.yaml (default: $ARBOR_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "override the sync protocol address")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	if err := ensureDir(cfg.Accounts.Path); err != nil {
		return err
	}
	dir, err := auth.OpenDirectory(auth.DirectoryConfig{
		Path:     cfg.Accounts.Path,
		PoolSize: cfg.Accounts.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening account directory: %w", err)
	}
	defer dir.Close()

	srv := server.New(auth.NewLocator(dir, backend, cfg.Accounts.CacheTTL, logger), server.Config{
		Limits:           cfg.Limits(),
		PipelineDepth:    cfg.PipelineDepth,
		ReadTimeout:      cfg.ReadTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ResponseEncoding: cfg.ResponseEncoding,
		Logger:           logger,
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}

	if cfg.HealthListen != "" {
		health := &http.Server{
			Addr:              cfg.HealthListen,
			Handler:           server.HealthHandler(srv),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			health.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("arbord starting",
		"listen", cfg.Listen,
		"health", cfg.HealthListen,
		"backend", cfg.Backend.Kind,
	)
	return srv.Serve(ctx, ln)
}

// loadConfig reads path, else $ARBOR_CONFIG, else the defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv("ARBOR_CONFIG") != "":
		return config.Load()
	default:
		cfg := config.Default()
		cfg.ExpandVariables()
		return cfg, nil
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// openBackend opens the configured item store and returns it with its
// cleanup function.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Backend, func(), error) {
	switch cfg.Backend.Kind {
	case config.BackendDynamoDB:
		ddb := cfg.Backend.DynamoDB
		client, err := store.NewClient(ctx, ddb.Region, ddb.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		s := store.New(client, store.Config{
			ItemsTable:         ddb.ItemsTable,
			ChildrenTable:      ddb.ChildrenTable,
			CountersTable:      ddb.CountersTable,
			NumShards:          ddb.NumShards,
			TombstoneRetention: ddb.TombstoneRetention,
		})
		backend := auth.BackendFunc(func(name string) engine.Store { return s.Tenant(name) })
		return backend, func() {}, nil

	default:
		if err := ensureDir(cfg.Backend.SQLite.Path); err != nil {
			return nil, nil, err
		}
		s, err := sqlstore.Open(sqlstore.Config{
			Path:     cfg.Backend.SQLite.Path,
			PoolSize: cfg.Backend.SQLite.PoolSize,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		backend := auth.BackendFunc(func(name string) engine.Store { return s.Tenant(name) })
		return backend, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing item store", "error", err)
			}
		}, nil
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	return nil
}
