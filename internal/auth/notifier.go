// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"log/slog"
)

// ResetNotifier is told about completed password resets.
// Delivery (email, chat) is not this package's job.
type ResetNotifier interface {
	PasswordReset(ctx context.Context, account Account) error
}

// LogNotifier records password resets as structured log entries.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// PasswordReset logs the reset without any credential material.
func (n *LogNotifier) PasswordReset(ctx context.Context, account Account) error {
	n.logger.InfoContext(ctx, "password reset completed",
		"event", "password_reset",
		"account_id", account.ID,
		"username", account.Username,
	)
	return nil
}
