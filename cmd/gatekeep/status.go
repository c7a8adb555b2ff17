// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/observability"
)

// BackendStatus holds the health of one configured backend.
type BackendStatus struct {
	Component string `json:"component"`
	Backend   string `json:"backend"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

func newStatusCmd(deps *Deps) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the configured identity store and lockout backend",
		Long: `Open the configured identity store and failed-login counter backend,
ping each one and report whether it answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, deps, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, deps *Deps, statusCfg *statusConfig) error {
	cfg, err := deps.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	statuses := []BackendStatus{
		checkStore(ctx, deps, cfg),
		checkTracker(ctx, deps, cfg),
	}

	var output string
	if statusCfg.jsonOutput {
		output, err = formatStatusJSON(statuses)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(statuses)
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("BACKEND_UNHEALTHY").
				With("component", s.Component).
				Errorf("%s backend %q is unhealthy", s.Component, s.Backend)
		}
	}
	return nil
}

func checkStore(ctx context.Context, deps *Deps, cfg *config.Config) BackendStatus {
	start := time.Now()
	identityStore, closeStore, err := deps.StoreFactory(ctx, cfg)
	if err != nil {
		return unhealthy("store", cfg.Store.Backend, err)
	}
	defer closeStore()
	return pingStatus(ctx, "store", cfg.Store.Backend, identityStore, start)
}

func checkTracker(ctx context.Context, deps *Deps, cfg *config.Config) BackendStatus {
	start := time.Now()
	tracker, closeTracker, err := deps.TrackerFactory(ctx, cfg)
	if err != nil {
		return unhealthy("lockout", cfg.Lockout.Backend, err)
	}
	defer closeTracker()
	return pingStatus(ctx, "lockout", cfg.Lockout.Backend, tracker, start)
}

func pingStatus(ctx context.Context, component, backend string, target any, start time.Time) BackendStatus {
	if p, ok := target.(observability.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			return unhealthy(component, backend, err)
		}
	}
	return BackendStatus{
		Component: component,
		Backend:   backend,
		Healthy:   true,
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

func unhealthy(component, backend string, err error) BackendStatus {
	return BackendStatus{
		Component: component,
		Backend:   backend,
		Error:     err.Error(),
	}
}

// formatStatusTable formats the statuses as a human-readable table.
func formatStatusTable(statuses []BackendStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tBACKEND\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "---------\t-------\t------\t------")

	for _, s := range statuses {
		if s.Healthy {
			_, _ = fmt.Fprintf(w, "%s\t%s\thealthy\t%dms\n", s.Component, s.Backend, s.LatencyMS)
		} else {
			_, _ = fmt.Fprintf(w, "%s\t%s\tunhealthy\t%s\n", s.Component, s.Backend, s.Error)
		}
	}

	_ = w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

// formatStatusJSON formats the statuses as JSON.
func formatStatusJSON(statuses []BackendStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_ENCODE_FAILED").Wrap(err)
	}
	return string(data), nil
}
