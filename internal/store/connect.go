// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectConfig controls how Connect waits for the database.
type ConnectConfig struct {
	// MaxRetries is the number of additional ping attempts after the first.
	MaxRetries uint64
	// BaseDelay is the first backoff delay; it doubles each attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration
}

// DefaultConnectConfig returns the startup connection policy.
func DefaultConnectConfig() ConnectConfig {
	return ConnectConfig{
		MaxRetries: 5,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool and pings it with exponential backoff until the
// database answers or the retries run out.
func Connect(ctx context.Context, databaseURL string, cfg ConnectConfig) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, oops.Code("DB_URL_REQUIRED").Errorf("database url is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, cfg ConnectConfig) error {
	backoff := retry.NewExponential(cfg.BaseDelay)
	if cfg.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(cfg.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(cfg.MaxRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.DebugContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
