// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package redisstore provides a Redis-backed auth.AttemptTracker so that
// several processes share one set of failed-login counters.
package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// DefaultKeyPrefix namespaces counter keys.
const DefaultKeyPrefix = "gatekeep:lockout:"

// ErrUnavailable indicates the Redis backend could not be reached.
var ErrUnavailable = errors.New("lockout backend unavailable")

// AttemptTracker counts failed logins in Redis under <prefix><username>.
type AttemptTracker struct {
	client redis.Cmdable
	cfg    auth.LockoutConfig
	prefix string
}

// Option configures an AttemptTracker.
type Option func(*AttemptTracker)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(t *AttemptTracker) { t.prefix = prefix }
}

// NewAttemptTracker creates a tracker on client after validating cfg.
func NewAttemptTracker(client redis.Cmdable, cfg auth.LockoutConfig, opts ...Option) (*AttemptTracker, error) {
	if client == nil {
		return nil, oops.Code("LOCKOUT_CONFIG_INVALID").Errorf("redis client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &AttemptTracker{client: client, cfg: cfg, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *AttemptTracker) key(username string) string {
	return t.prefix + username
}

// recordFailureScript increments the counter and, when a window is given in
// ARGV[1] milliseconds, sets the expiry on any counter that has none. INCR
// and PEXPIRE run as one script so a counter never outlives its window.
var recordFailureScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local window = tonumber(ARGV[1])
if window > 0 and redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], window)
end
return n
`)

// RecordFailure increments the counter. With a window configured, the key
// expires Window after the first failure.
func (t *AttemptTracker) RecordFailure(ctx context.Context, username string) (bool, error) {
	count, err := recordFailureScript.Run(ctx, t.client,
		[]string{t.key(username)},
		t.cfg.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, unavailable("record failure", username, err)
	}
	return count >= int64(t.cfg.Threshold), nil
}

// Reset deletes the counter.
func (t *AttemptTracker) Reset(ctx context.Context, username string) error {
	if err := t.client.Del(ctx, t.key(username)).Err(); err != nil {
		return unavailable("reset", username, err)
	}
	return nil
}

// Failures returns the counter, or zero when none exists.
func (t *AttemptTracker) Failures(ctx context.Context, username string) (int, error) {
	count, err := t.client.Get(ctx, t.key(username)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get failures", username, err)
	}
	return count, nil
}

// Locked reports whether the counter is at or above the threshold.
func (t *AttemptTracker) Locked(ctx context.Context, username string) (bool, error) {
	failures, err := t.Failures(ctx, username)
	if err != nil {
		return false, err
	}
	return failures >= t.cfg.Threshold, nil
}

// Ping checks that Redis answers. Used by the readiness check.
func (t *AttemptTracker) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return oops.Code("LOCKOUT_BACKEND_UNAVAILABLE").
			With("operation", "ping").
			Wrap(errors.Join(ErrUnavailable, err))
	}
	return nil
}

func unavailable(operation, username string, err error) error {
	return oops.Code("LOCKOUT_BACKEND_UNAVAILABLE").
		With("operation", operation).
		With("username", username).
		Wrap(errors.Join(ErrUnavailable, err))
}

var _ auth.AttemptTracker = (*AttemptTracker)(nil)
