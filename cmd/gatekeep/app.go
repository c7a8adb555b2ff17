// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/logging"
)

const serviceName = "gatekeep"

// app is the set of opened backends and services one command runs against.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   auth.IdentityStore
	tracker auth.AttemptTracker
	issuer  *auth.JWTIssuer
	authn   *auth.Authenticator
	closers []func()
}

// Close releases backends in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// loadConfig resolves the config file and loads the layered configuration.
func (d *Deps) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := d.ConfigFileFinder()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return d.ConfigLoader(path, cmd.Flags())
}

// newLogger builds the configured logger and installs it as the slog default
// so library code logging through slog.Default shares the format.
func (d *Deps) newLogger(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.LogLevel(), d.LogOutput)
}

// openApp loads and validates configuration, then opens the store, the
// counter backend and the authenticator. Callers must Close the result.
func (d *Deps) openApp(cmd *cobra.Command, opts ...auth.Option) (*app, error) {
	cfg, err := d.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: d.newLogger(cfg)}
	ctx := cmd.Context()

	identityStore, closeStore, err := d.StoreFactory(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("backend", cfg.Store.Backend).Wrap(err)
	}
	a.store = identityStore
	a.closers = append(a.closers, closeStore)

	tracker, closeTracker, err := d.TrackerFactory(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, oops.Code("LOCKOUT_OPEN_FAILED").With("backend", cfg.Lockout.Backend).Wrap(err)
	}
	a.tracker = tracker
	a.closers = append(a.closers, closeTracker)

	hasher, err := auth.NewPBKDF2Hasher(cfg.HasherConfig())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.issuer, err = auth.NewJWTIssuer(cfg.SessionConfig())
	if err != nil {
		a.Close()
		return nil, err
	}

	opts = append([]auth.Option{auth.WithLogger(a.logger)}, opts...)
	a.authn, err = auth.NewAuthenticator(identityStore, hasher, tracker, a.issuer, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// runWithApp opens the app for cmd, runs fn and closes the app.
func (d *Deps) runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := d.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// readSecret reads one line from the command's stdin. Secrets never come from
// flags. prompt is written to stderr.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	if prompt != "" {
		cmd.PrintErr(prompt)
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("INPUT_FAILED").With("operation", "read secret").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
