// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package auth provides account authentication and credential lifecycle
// management for gatekeep.
//
// # Components
//
// The package is built leaf-first:
//   - PasswordHasher - salts and hashes passwords (PBKDF2Hasher)
//   - AttemptTracker - counts consecutive failed logins per username (MemoryAttemptTracker)
//   - IdentityStore - persistence contract for Account records (see filestore and postgres)
//   - SessionIssuer - signs time-bounded session tokens (JWTIssuer)
//   - Authenticator - registration, login, identity-verified password reset and profile updates
//
// # Errors
//
// Operations return oops errors carrying a stable code (see the Code* constants)
// and wrapping one of the package sentinels, so callers may branch on either
// errors.Is or the code. Login never distinguishes an unknown username from a
// wrong password.
//
// # Concurrency
//
// Authenticator, MemoryAttemptTracker and JWTIssuer are safe for concurrent use.
// The Authenticator serializes read-check-write sequences against its
// IdentityStore with a single mutex.
package auth
