// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

func TestStatus_Properties(t *testing.T) {
	cmd := newStatusCmd(&Deps{})

	assert.Equal(t, "status", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.Flags().Lookup("json"))
}

func TestStatus_Healthy(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("", "status")
	assert.Contains(t, out, "COMPONENT")
	assert.Contains(t, out, "store")
	assert.Contains(t, out, "file")
	assert.Contains(t, out, "lockout")
	assert.Contains(t, out, "memory")
	assert.NotContains(t, out, "unhealthy")
}

func TestStatus_JSONOutput(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("", "status", "--json")

	var statuses []BackendStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "store", statuses[0].Component)
	assert.True(t, statuses[0].Healthy)
	assert.Equal(t, "lockout", statuses[1].Component)
	assert.True(t, statuses[1].Healthy)
}

func TestStatus_UnhealthyBackend(t *testing.T) {
	env := newCLIEnv(t)
	env.deps.TrackerFactory = func(context.Context, *config.Config) (auth.AttemptTracker, func(), error) {
		return nil, nil, errors.New("dial tcp: connection refused")
	}

	out, err := env.run("", "status")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "BACKEND_UNHEALTHY")
	errutil.AssertErrorContext(t, err, "component", "lockout")
	assert.Contains(t, out, "unhealthy")
	assert.Contains(t, out, "connection refused")
}

func TestFormatStatusTable(t *testing.T) {
	table := formatStatusTable([]BackendStatus{
		{Component: "store", Backend: "postgres", Healthy: true, LatencyMS: 3},
		{Component: "lockout", Backend: "redis", Error: "timeout"},
	})

	assert.Contains(t, table, "COMPONENT")
	assert.Contains(t, table, "healthy")
	assert.Contains(t, table, "3ms")
	assert.Contains(t, table, "unhealthy")
	assert.Contains(t, table, "timeout")
}

func TestFormatStatusJSON(t *testing.T) {
	out, err := formatStatusJSON([]BackendStatus{{Component: "store", Backend: "file", Healthy: true}})
	require.NoError(t, err)
	assert.Contains(t, out, `"component": "store"`)
	assert.NotContains(t, out, "error", "empty fields are omitted")
}
