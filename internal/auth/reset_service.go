// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"

	"github.com/samber/oops"
)

// ResetRequest carries the identity proof and new password for a reset.
type ResetRequest struct {
	Username    string
	Email       string
	LastName    string
	NewPassword string
}

// VerifyIdentity reports whether an account with username exists and its
// stored email and last name exactly match the given values.
func (a *Authenticator) VerifyIdentity(ctx context.Context, username, email, lastName string) (bool, error) {
	accounts, err := a.store.LoadAll(ctx)
	if err != nil {
		return false, oops.Code("AUTH_VERIFY_IDENTITY_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	account, found := findByUsername(accounts, NormalizeUsername(username))
	return found && identityMatches(account, email, lastName), nil
}

// ResetPassword replaces the password of an identity-verified account and
// clears its failure counter. An unknown username and a mismatched identity
// both fail with AUTH_IDENTITY_VERIFICATION_FAILED.
func (a *Authenticator) ResetPassword(ctx context.Context, req ResetRequest) (bool, error) {
	if err := CheckPassword(req.NewPassword); err != nil {
		a.metrics.passwordReset(outcomeInvalidForm)
		return false, err
	}

	ok, err := a.VerifyIdentity(ctx, req.Username, req.Email, req.LastName)
	if err != nil {
		a.metrics.passwordReset(outcomeError)
		return false, err
	}
	if !ok {
		a.metrics.passwordReset(outcomeMismatch)
		return false, identityVerificationFailed()
	}

	hash, err := a.hash(req.NewPassword)
	if err != nil {
		a.metrics.passwordReset(outcomeError)
		return false, oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	username := NormalizeUsername(req.Username)

	a.mu.Lock()
	defer a.mu.Unlock()

	// Reload under the lock; the account may have changed since the check above.
	accounts, err := a.store.LoadAll(ctx)
	if err != nil {
		a.metrics.passwordReset(outcomeError)
		return false, oops.Code("AUTH_RESET_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	account, found := findByUsername(accounts, username)
	if !found || !identityMatches(account, req.Email, req.LastName) {
		a.metrics.passwordReset(outcomeMismatch)
		return false, identityVerificationFailed()
	}

	account.PasswordHash = hash
	if err := a.store.Save(ctx, account); err != nil {
		a.metrics.passwordReset(outcomeError)
		return false, oops.Code("AUTH_RESET_FAILED").
			With("operation", "save account").
			With("account_id", account.ID).
			Wrap(err)
	}

	if err := a.tracker.Reset(ctx, username); err != nil {
		a.metrics.passwordReset(outcomeError)
		return false, oops.Code("AUTH_RESET_FAILED").
			With("operation", "reset failures").
			With("account_id", account.ID).
			Wrap(err)
	}

	if err := a.notifier.PasswordReset(ctx, account); err != nil {
		a.logger.WarnContext(ctx, "best-effort reset notification failed",
			"operation", "notify_reset",
			"account_id", account.ID,
			"error", err.Error(),
		)
	}

	a.metrics.passwordReset(outcomeSuccess)
	return true, nil
}

func identityMatches(account Account, email, lastName string) bool {
	return account.Email == email && account.LastName == lastName
}

func identityVerificationFailed() error {
	return oops.Code(CodeIdentityVerificationFailed).Wrap(ErrIdentityVerificationFailed)
}
