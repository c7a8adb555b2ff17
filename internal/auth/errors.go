// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import "errors"

// Sentinel errors. Operations wrap these in oops errors carrying the matching code.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAccount is returned when an email or username is already in use.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrLockedPendingReset is returned once the failed-login threshold is reached.
	ErrLockedPendingReset = errors.New("account locked pending password reset")

	// ErrIdentityVerificationFailed is returned when reset identity details do not match.
	ErrIdentityVerificationFailed = errors.New("identity verification failed")

	// ErrConflict is returned by AccountCreator.Create when another writer
	// already holds the account's ID or username.
	ErrConflict = errors.New("account id or username already claimed")

	// ErrInvalidCredentialFormat is returned when a stored hash cannot be decoded.
	ErrInvalidCredentialFormat = errors.New("invalid stored credential format")
)

// Error codes attached to oops errors returned by this package.
const (
	CodeDuplicateAccount           = "AUTH_DUPLICATE_ACCOUNT"
	CodeInvalidCredentials         = "AUTH_INVALID_CREDENTIALS"
	CodeLockedPendingReset         = "AUTH_LOCKED_PENDING_RESET"
	CodeIdentityVerificationFailed = "AUTH_IDENTITY_VERIFICATION_FAILED"
	CodeInvalidCredentialFormat    = "AUTH_INVALID_CREDENTIAL_FORMAT"
	CodeAccountNotFound            = "AUTH_ACCOUNT_NOT_FOUND"
	CodeInvalidRequest             = "AUTH_INVALID_REQUEST"
	CodeEmptyPassword              = "AUTH_EMPTY_PASSWORD"
	CodeWriteConflict              = "AUTH_WRITE_CONFLICT"
)
