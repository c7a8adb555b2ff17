// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package config loads gatekeep configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then the
// GATEKEEP_SIGNING_KEY and DATABASE_URL environment variables, then any
// command-line flags the user set explicitly.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/auth/filestore"
	"github.com/gatekeep/gatekeep/internal/logging"
)

// Environment variables read by Load.
const (
	EnvSigningKey  = "GATEKEEP_SIGNING_KEY"
	EnvDatabaseURL = "DATABASE_URL"
)

// Lockout counter backends.
const (
	LockoutBackendMemory = "memory"
	LockoutBackendRedis  = "redis"
)

// Identity store backends.
const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

// Config is the complete gatekeep configuration.
type Config struct {
	Hash    HashConfig    `koanf:"hash"`
	Lockout LockoutConfig `koanf:"lockout"`
	Session SessionConfig `koanf:"session"`
	Store   StoreConfig   `koanf:"store"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// HashConfig holds password hashing parameters.
type HashConfig struct {
	Iterations int `koanf:"iterations"`
	SaltLength int `koanf:"salt_length"`
	KeyLength  int `koanf:"key_length"`
}

// LockoutConfig holds failed-login counter settings.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Window    time.Duration `koanf:"window"`
	Backend   string        `koanf:"backend"`
	RedisAddr string        `koanf:"redis_addr"`
}

// SessionConfig holds session token settings.
type SessionConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	Issuer     string        `koanf:"issuer"`
	SigningKey string        `koanf:"signing_key"`
}

// StoreConfig selects and configures the identity store.
type StoreConfig struct {
	Backend     string `koanf:"backend"`
	Path        string `koanf:"path"`
	DatabaseURL string `koanf:"database_url"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig configures the observability endpoint of the serve command.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Defaults returns the built-in configuration. The signing key has no default.
func Defaults() Config {
	return Config{
		Hash: HashConfig{
			Iterations: auth.DefaultIterations,
			SaltLength: auth.DefaultSaltLength,
			KeyLength:  auth.DefaultKeyLength,
		},
		Lockout: LockoutConfig{
			Threshold: auth.DefaultLockoutThreshold,
			Backend:   LockoutBackendMemory,
		},
		Session: SessionConfig{
			TTL:    auth.DefaultSessionTTL,
			Issuer: auth.DefaultIssuer,
		},
		Store: StoreConfig{
			Backend: StoreBackendFile,
			Path:    filestore.DefaultPath(),
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9110",
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"hash-iterations":   "hash.iterations",
	"hash-salt-length":  "hash.salt_length",
	"hash-key-length":   "hash.key_length",
	"lockout-threshold": "lockout.threshold",
	"lockout-window":    "lockout.window",
	"lockout-backend":   "lockout.backend",
	"redis-addr":        "lockout.redis_addr",
	"session-ttl":       "session.ttl",
	"session-issuer":    "session.issuer",
	"store-backend":     "store.backend",
	"store-path":        "store.path",
	"database-url":      "store.database_url",
	"log-format":        "log.format",
	"log-level":         "log.level",
	"metrics-addr":      "metrics.addr",
}

// RegisterFlags adds every overridable setting to fs. The signing key has no
// flag; it comes from the config file or GATEKEEP_SIGNING_KEY.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.Int("hash-iterations", d.Hash.Iterations, "PBKDF2 iteration count")
	fs.Int("hash-salt-length", d.Hash.SaltLength, "password salt length in bytes")
	fs.Int("hash-key-length", d.Hash.KeyLength, "derived key length in bytes")
	fs.Int("lockout-threshold", d.Lockout.Threshold, "consecutive failed logins before a reset is required")
	fs.Duration("lockout-window", d.Lockout.Window, "failed-login counter lifetime (0 = never decays)")
	fs.String("lockout-backend", d.Lockout.Backend, "failed-login counter backend (memory or redis)")
	fs.String("redis-addr", d.Lockout.RedisAddr, "redis address for the redis lockout backend")
	fs.Duration("session-ttl", d.Session.TTL, "session token lifetime")
	fs.String("session-issuer", d.Session.Issuer, "session token issuer claim")
	fs.String("store-backend", d.Store.Backend, "identity store backend (file or postgres)")
	fs.String("store-path", d.Store.Path, "accounts file for the file store")
	fs.String("database-url", "", "PostgreSQL URL for the postgres store (default: $DATABASE_URL)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address for serve (empty = disabled)")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the environment and the explicitly set flags in fs (may be nil).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaultValues() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	for env, key := range map[string]string{
		EnvSigningKey:  "session.signing_key",
		EnvDatabaseURL: "store.database_url",
	} {
		if value, ok := os.LookupEnv(env); ok && value != "" {
			if err := k.Set(key, value); err != nil {
				return nil, oops.Code("CONFIG_INVALID").With("key", key).Wrap(err)
			}
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	return cfg, nil
}

func defaultValues() map[string]any {
	d := Defaults()
	return map[string]any{
		"hash.iterations":     d.Hash.Iterations,
		"hash.salt_length":    d.Hash.SaltLength,
		"hash.key_length":     d.Hash.KeyLength,
		"lockout.threshold":   d.Lockout.Threshold,
		"lockout.window":      d.Lockout.Window,
		"lockout.backend":     d.Lockout.Backend,
		"lockout.redis_addr":  d.Lockout.RedisAddr,
		"session.ttl":         d.Session.TTL,
		"session.issuer":      d.Session.Issuer,
		"session.signing_key": "",
		"store.backend":       d.Store.Backend,
		"store.path":          d.Store.Path,
		"store.database_url":  "",
		"log.format":          d.Log.Format,
		"log.level":           d.Log.Level,
		"metrics.addr":        d.Metrics.Addr,
	}
}

// Validate checks every setting and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.HasherConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "hash").Wrap(err)
	}
	if err := c.AttemptLockoutConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "lockout").Wrap(err)
	}
	switch c.Lockout.Backend {
	case LockoutBackendMemory:
	case LockoutBackendRedis:
		if strings.TrimSpace(c.Lockout.RedisAddr) == "" {
			return invalid("lockout.redis_addr", "redis_addr is required when lockout.backend is redis")
		}
	default:
		return invalid("lockout.backend", "lockout.backend must be 'memory' or 'redis', got %q", c.Lockout.Backend)
	}

	if c.Session.SigningKey == "" {
		return invalid("session.signing_key", "session signing key is required (set %s)", EnvSigningKey)
	}
	if err := c.SessionConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "session").Wrap(err)
	}

	switch c.Store.Backend {
	case StoreBackendFile:
		if strings.TrimSpace(c.Store.Path) == "" {
			return invalid("store.path", "store.path is required for the file store")
		}
	case StoreBackendPostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return invalid("store.database_url", "database URL is required for the postgres store (set %s)", EnvDatabaseURL)
		}
	default:
		return invalid("store.backend", "store.backend must be 'file' or 'postgres', got %q", c.Store.Backend)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}
	return nil
}

// HasherConfig returns the password hasher parameters.
func (c *Config) HasherConfig() auth.HasherConfig {
	return auth.HasherConfig{
		Iterations: c.Hash.Iterations,
		SaltLength: c.Hash.SaltLength,
		KeyLength:  c.Hash.KeyLength,
	}
}

// AttemptLockoutConfig returns the failed-login counter parameters.
func (c *Config) AttemptLockoutConfig() auth.LockoutConfig {
	return auth.LockoutConfig{
		Threshold: c.Lockout.Threshold,
		Window:    c.Lockout.Window,
	}
}

// SessionConfig returns the session issuer parameters.
func (c *Config) SessionConfig() auth.SessionConfig {
	return auth.SessionConfig{
		SigningKey: []byte(c.Session.SigningKey),
		TTL:        c.Session.TTL,
		Issuer:     c.Session.Issuer,
	}
}

// LogLevel returns the parsed log level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}
