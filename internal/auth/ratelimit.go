// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// DefaultLockoutThreshold is the number of consecutive failures that requires a password reset.
const DefaultLockoutThreshold = 3

// LockoutConfig configures failed-login tracking.
type LockoutConfig struct {
	// Threshold is the failure count at which the identity becomes reset-required.
	Threshold int

	// Window makes a counter expire this long after its first failure.
	// Zero means counters only clear on Reset.
	Window time.Duration
}

// Validate checks the lockout configuration.
func (c LockoutConfig) Validate() error {
	if c.Threshold < 1 {
		return oops.Code("LOCKOUT_CONFIG_INVALID").
			With("threshold", c.Threshold).
			Errorf("lockout threshold must be at least 1")
	}
	if c.Window < 0 {
		return oops.Code("LOCKOUT_CONFIG_INVALID").
			With("window", c.Window.String()).
			Errorf("lockout window cannot be negative")
	}
	return nil
}

// AttemptTracker counts consecutive failed logins per username.
// It only signals; callers decide whether to refuse a login.
type AttemptTracker interface {
	// RecordFailure increments the counter and reports whether it reached the threshold.
	RecordFailure(ctx context.Context, username string) (bool, error)

	// Reset zeroes the counter.
	Reset(ctx context.Context, username string) error

	// Failures returns the current counter value.
	Failures(ctx context.Context, username string) (int, error)

	// Locked reports whether the counter is at or above the threshold.
	Locked(ctx context.Context, username string) (bool, error)
}

type attemptEntry struct {
	count       int
	firstFailed time.Time
	lastFailed  time.Time
}

// MemoryAttemptTracker keeps counters in process memory.
type MemoryAttemptTracker struct {
	mu      sync.Mutex
	cfg     LockoutConfig
	now     func() time.Time
	entries map[string]*attemptEntry
}

// NewMemoryAttemptTracker creates an in-memory tracker.
func NewMemoryAttemptTracker(cfg LockoutConfig) (*MemoryAttemptTracker, error) {
	return NewMemoryAttemptTrackerWithClock(cfg, time.Now)
}

// NewMemoryAttemptTrackerWithClock creates an in-memory tracker with an injected clock.
func NewMemoryAttemptTrackerWithClock(cfg LockoutConfig, now func() time.Time) (*MemoryAttemptTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		return nil, oops.Code("LOCKOUT_CONFIG_INVALID").Errorf("clock is required")
	}
	return &MemoryAttemptTracker{
		cfg:     cfg,
		now:     now,
		entries: make(map[string]*attemptEntry),
	}, nil
}

// RecordFailure increments the counter for username.
func (t *MemoryAttemptTracker) RecordFailure(_ context.Context, username string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry := t.current(username, now)
	if entry == nil {
		entry = &attemptEntry{firstFailed: now}
		t.entries[username] = entry
	}
	entry.count++
	entry.lastFailed = now

	return entry.count >= t.cfg.Threshold, nil
}

// Reset zeroes the counter for username.
func (t *MemoryAttemptTracker) Reset(_ context.Context, username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, username)
	return nil
}

// Failures returns the counter for username.
func (t *MemoryAttemptTracker) Failures(_ context.Context, username string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry := t.current(username, t.now()); entry != nil {
		return entry.count, nil
	}
	return 0, nil
}

// Locked reports whether username has reached the threshold.
func (t *MemoryAttemptTracker) Locked(ctx context.Context, username string) (bool, error) {
	failures, err := t.Failures(ctx, username)
	if err != nil {
		return false, err
	}
	return failures >= t.cfg.Threshold, nil
}

// LastFailure returns the time of the most recent failure, if any.
func (t *MemoryAttemptTracker) LastFailure(username string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry := t.current(username, t.now()); entry != nil {
		return entry.lastFailed, true
	}
	return time.Time{}, false
}

// current returns the live entry for username, dropping it if its window elapsed.
// Caller must hold t.mu.
func (t *MemoryAttemptTracker) current(username string, now time.Time) *attemptEntry {
	entry, ok := t.entries[username]
	if !ok {
		return nil
	}
	if t.cfg.Window > 0 && now.Sub(entry.firstFailed) >= t.cfg.Window {
		delete(t.entries, username)
		return nil
	}
	return entry
}
