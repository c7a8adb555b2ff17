// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/auth/filestore"
	"github.com/gatekeep/gatekeep/internal/auth/postgres"
	"github.com/gatekeep/gatekeep/internal/auth/redisstore"
	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/observability"
	"github.com/gatekeep/gatekeep/internal/store"
	"github.com/gatekeep/gatekeep/internal/xdg"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// ConfigLoader builds the configuration from a file path and flags.
	// Default: config.Load
	ConfigLoader func(path string, fs *pflag.FlagSet) (*config.Config, error)

	// ConfigFileFinder returns the config file used when --config is empty.
	// Default: xdg.ConfigFile
	ConfigFileFinder func() (string, error)

	// StoreFactory opens the configured identity store.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg *config.Config) (auth.IdentityStore, func(), error)

	// TrackerFactory opens the configured failed-login counter backend.
	// Default: openTracker
	TrackerFactory func(ctx context.Context, cfg *config.Config) (auth.AttemptTracker, func(), error)

	// MigratorFactory creates a schema migrator from a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// LogOutput receives structured logs.
	// Default: os.Stderr
	LogOutput io.Writer
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registerer() prometheus.Registerer
}

// withDefaults returns a copy of d with every nil field set to its default.
func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.ConfigLoader == nil {
		out.ConfigLoader = config.Load
	}
	if out.ConfigFileFinder == nil {
		out.ConfigFileFinder = xdg.ConfigFile
	}
	if out.StoreFactory == nil {
		out.StoreFactory = openStore
	}
	if out.TrackerFactory == nil {
		out.TrackerFactory = openTracker
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.LogOutput == nil {
		out.LogOutput = os.Stderr
	}
	return out
}

func noopClose() {}

// openStore opens the identity store selected by store.backend.
func openStore(ctx context.Context, cfg *config.Config) (auth.IdentityStore, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, store.DefaultConnectConfig())
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewAccountRepository(pool), pool.Close, nil
	case config.StoreBackendFile:
		fileStore, err := filestore.New(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return fileStore, noopClose, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("key", "store.backend").
			Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// openTracker opens the failed-login counter backend selected by lockout.backend.
func openTracker(ctx context.Context, cfg *config.Config) (auth.AttemptTracker, func(), error) {
	switch cfg.Lockout.Backend {
	case config.LockoutBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Lockout.RedisAddr})
		tracker, err := redisstore.NewAttemptTracker(client, cfg.AttemptLockoutConfig())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := tracker.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return tracker, func() { _ = client.Close() }, nil
	case config.LockoutBackendMemory:
		tracker, err := auth.NewMemoryAttemptTracker(cfg.AttemptLockoutConfig())
		if err != nil {
			return nil, nil, err
		}
		return tracker, noopClose, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("key", "lockout.backend").
			Errorf("unknown lockout backend %q", cfg.Lockout.Backend)
	}
}
