// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/observability"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

const (
	readinessTimeout = 2 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health probes for the configured backends",
		Long: `Open the configured identity store and failed-login counter backend and
serve /metrics, /healthz/liveness and /healthz/readiness on --metrics-addr
until interrupted. Readiness fails while any backend stops answering.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, deps)
		},
	}
}

func runServe(cmd *cobra.Command, deps *Deps) error {
	cfg, err := deps.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "metrics.addr").
			Errorf("serve requires a metrics address")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	// The checker is assigned before Start, once the backends are open.
	var checker observability.ReadinessChecker
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool {
		return checker != nil && checker()
	})

	a, err := deps.openApp(cmd, auth.WithMetrics(auth.NewMetrics(obsServer.Registerer())))
	if err != nil {
		return err
	}
	defer a.Close()

	checker = observability.PingReadiness(a.logger, readinessTimeout, backendPingers(a))

	errCh, err := obsServer.Start()
	if err != nil {
		return oops.Code("SERVE_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
	}
	cmd.Printf("Serving metrics on %s\n", obsServer.Addr())
	a.logger.Info("serving",
		"addr", obsServer.Addr(),
		"store", cfg.Store.Backend,
		"lockout", cfg.Lockout.Backend,
	)

	var serveErr error
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			serveErr = oops.Code("SERVE_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(shutdownCtx); err != nil {
		errutil.LogWarn(shutdownCtx, a.logger, "error stopping observability server", err)
	}
	return serveErr
}

// backendPingers returns the opened backends that can report their health.
func backendPingers(a *app) map[string]observability.Pinger {
	pingers := make(map[string]observability.Pinger, 2)
	if p, ok := a.store.(observability.Pinger); ok {
		pingers["store"] = p
	}
	if p, ok := a.tracker.(observability.Pinger); ok {
		pingers["lockout"] = p
	}
	return pingers
}

