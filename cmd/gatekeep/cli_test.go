// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/config"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// cliEnv runs CLI invocations against one file store and one shared
// in-memory counter, the way separate processes would share redis.
type cliEnv struct {
	t         *testing.T
	storePath string
	tracker   *auth.MemoryAttemptTracker
	deps      *Deps
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv(config.EnvSigningKey, testSigningKey)
	t.Setenv(config.EnvDatabaseURL, "")

	tracker, err := auth.NewMemoryAttemptTracker(auth.LockoutConfig{Threshold: auth.DefaultLockoutThreshold})
	require.NoError(t, err)

	env := &cliEnv{
		t:         t,
		storePath: filepath.Join(t.TempDir(), "accounts.json"),
		tracker:   tracker,
	}
	env.deps = &Deps{
		ConfigFileFinder: func() (string, error) { return "", nil },
		TrackerFactory: func(context.Context, *config.Config) (auth.AttemptTracker, func(), error) {
			return env.tracker, noopClose, nil
		},
		LogOutput: io.Discard,
	}
	return env
}

// run executes one CLI invocation with stdin and returns stdout.
func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	configFile = ""

	cmd := newRootCmdWithDeps(e.deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--store-path", e.storePath, "--hash-iterations", "1000"))

	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()
	out, err := e.run(stdin, args...)
	require.NoError(e.t, err)
	return out
}

func (e *cliEnv) registerAlice() {
	e.t.Helper()
	out := e.mustRun("Passw0rd!\n", "register",
		"--first-name", "Alice", "--last-name", "Smith", "--email", "alice@example.com")
	require.Equal(e.t, "Registered smithali\n", out)
}
