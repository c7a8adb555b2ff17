// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "gatekeep.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvSigningKey, "")
	t.Setenv(config.EnvDatabaseURL, "")
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Session.SigningKey = testSigningKey
	cfg.Store.Path = "/tmp/accounts.json"
	return &cfg
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, config.Defaults(), *cfg)
	assert.Equal(t, 210000, cfg.Hash.Iterations)
	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, config.StoreBackendFile, cfg.Store.Backend)
	assert.True(t, strings.HasSuffix(cfg.Store.Path, "accounts.json"))
	assert.Empty(t, cfg.Session.SigningKey)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, map[string]any{
		"hash": map[string]any{"iterations": 5000},
		"lockout": map[string]any{
			"threshold":  5,
			"window":     "15m",
			"backend":    "redis",
			"redis_addr": "localhost:6379",
		},
		"session": map[string]any{
			"ttl":         "1h",
			"issuer":      "example",
			"signing_key": testSigningKey,
		},
		"log": map[string]any{"format": "text", "level": "debug"},
	})

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Hash.Iterations)
	assert.Equal(t, 16, cfg.Hash.SaltLength, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.Window)
	assert.Equal(t, config.LockoutBackendRedis, cfg.Lockout.Backend)
	assert.Equal(t, "localhost:6379", cfg.Lockout.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, "example", cfg.Session.Issuer)
	assert.Equal(t, testSigningKey, cfg.Session.SigningKey)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hash: [unclosed"), 0o600))

	_, err := config.Load(path, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, map[string]any{
		"session": map[string]any{"signing_key": "from-file-from-file-from-file-xx"},
		"store":   map[string]any{"backend": "postgres", "database_url": "postgres://file/db"},
	})
	t.Setenv(config.EnvSigningKey, testSigningKey)
	t.Setenv(config.EnvDatabaseURL, "postgres://env/db")

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, testSigningKey, cfg.Session.SigningKey)
	assert.Equal(t, "postgres://env/db", cfg.Store.DatabaseURL)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvDatabaseURL, "postgres://env/db")
	path := writeConfig(t, map[string]any{
		"lockout": map[string]any{"threshold": 7},
		"log":     map[string]any{"format": "text"},
	})

	fs := newFlags(t,
		"--lockout-threshold=4",
		"--session-ttl=5m",
		"--database-url=postgres://flag/db",
	)

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Lockout.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "postgres://flag/db", cfg.Store.DatabaseURL)
	assert.Equal(t, "text", cfg.Log.Format, "unset flags do not clobber file values")
}

func TestLoad_UnsetFlagsKeepDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), *cfg)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantKey string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"missing signing key", func(c *config.Config) { c.Session.SigningKey = "" }, "session.signing_key"},
		{"unknown lockout backend", func(c *config.Config) { c.Lockout.Backend = "etcd" }, "lockout.backend"},
		{"redis without address", func(c *config.Config) { c.Lockout.Backend = "redis" }, "lockout.redis_addr"},
		{"unknown store backend", func(c *config.Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"file store without path", func(c *config.Config) { c.Store.Path = " " }, "store.path"},
		{"postgres without url", func(c *config.Config) { c.Store.Backend = "postgres" }, "store.database_url"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorContext(t, err, "key", tt.wantKey)
		})
	}
}

func TestConfig_ValidateDelegatesToComponents(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		wantCode string
		section  string
	}{
		{"too few iterations", func(c *config.Config) { c.Hash.Iterations = 10 }, "HASHER_CONFIG_INVALID", "hash"},
		{"zero threshold", func(c *config.Config) { c.Lockout.Threshold = 0 }, "LOCKOUT_CONFIG_INVALID", "lockout"},
		{"short signing key", func(c *config.Config) { c.Session.SigningKey = "short" }, "SESSION_CONFIG_INVALID", "session"},
		{"zero ttl", func(c *config.Config) { c.Session.TTL = 0 }, "SESSION_CONFIG_INVALID", "session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			errutil.AssertErrorContext(t, err, "section", tt.section)
		})
	}
}

func TestConfig_ComponentConfigs(t *testing.T) {
	cfg := validConfig()
	cfg.Lockout.Window = time.Minute

	assert.Equal(t, auth.HasherConfig{Iterations: 210000, SaltLength: 16, KeyLength: 20}, cfg.HasherConfig())
	assert.Equal(t, auth.LockoutConfig{Threshold: 3, Window: time.Minute}, cfg.AttemptLockoutConfig())

	session := cfg.SessionConfig()
	assert.Equal(t, []byte(testSigningKey), session.SigningKey)
	assert.Equal(t, 30*time.Minute, session.TTL)
	assert.Equal(t, "gatekeep", session.Issuer)
}

func TestConfig_LogLevelFallsBackToInfo(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}
