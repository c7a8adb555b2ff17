// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// Minimum accepted hashing parameters.
const (
	MinIterations = 1000
	MinSaltLength = 16
	MinKeyLength  = 16
)

// Default hashing parameters.
const (
	DefaultIterations = 210_000
	DefaultSaltLength = 16
	DefaultKeyLength  = 20
)

// ErrEmptyPassword is returned for an empty or whitespace-only password.
var ErrEmptyPassword = oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")

// CheckPassword applies the password policy shared by registration, reset,
// profile updates and hashing: at least one non-whitespace character.
func CheckPassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrEmptyPassword
	}
	return nil
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded salt‖key hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the stored hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an
	// AUTH_INVALID_CREDENTIAL_FORMAT error if the stored hash is malformed.
	Verify(password, storedHash string) (bool, error)
}

// HasherConfig holds PBKDF2 parameters.
type HasherConfig struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// DefaultHasherConfig returns the production hashing parameters.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Iterations: DefaultIterations,
		SaltLength: DefaultSaltLength,
		KeyLength:  DefaultKeyLength,
	}
}

// Validate checks the parameters against the minimums.
func (c HasherConfig) Validate() error {
	if c.Iterations < MinIterations {
		return oops.Code("HASHER_CONFIG_INVALID").
			With("iterations", c.Iterations).
			Errorf("iterations must be at least %d", MinIterations)
	}
	if c.SaltLength < MinSaltLength {
		return oops.Code("HASHER_CONFIG_INVALID").
			With("salt_length", c.SaltLength).
			Errorf("salt length must be at least %d bytes", MinSaltLength)
	}
	if c.KeyLength < MinKeyLength {
		return oops.Code("HASHER_CONFIG_INVALID").
			With("key_length", c.KeyLength).
			Errorf("key length must be at least %d bytes", MinKeyLength)
	}
	return nil
}

// PBKDF2Hasher implements PasswordHasher with PBKDF2-HMAC-SHA256.
// Stored hashes are the standard base64 encoding of salt followed by the derived key.
type PBKDF2Hasher struct {
	cfg HasherConfig
}

// NewPBKDF2Hasher creates a hasher after validating cfg.
func NewPBKDF2Hasher(cfg HasherConfig) (*PBKDF2Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PBKDF2Hasher{cfg: cfg}, nil
}

// Hash produces a freshly salted hash of the password.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	if err := CheckPassword(password); err != nil {
		return "", err
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := h.derive(password, salt)

	encoded := make([]byte, 0, len(salt)+len(key))
	encoded = append(encoded, salt...)
	encoded = append(encoded, key...)
	return base64.StdEncoding.EncodeToString(encoded), nil
}

// Verify checks if the password matches the stored hash.
func (h *PBKDF2Hasher) Verify(password, storedHash string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil {
		return false, oops.Code(CodeInvalidCredentialFormat).
			With("reason", "decode").
			Wrap(ErrInvalidCredentialFormat)
	}

	if len(raw) != h.cfg.SaltLength+h.cfg.KeyLength {
		return false, oops.Code(CodeInvalidCredentialFormat).
			With("reason", "length").
			With("length", len(raw)).
			Wrap(ErrInvalidCredentialFormat)
	}

	salt := raw[:h.cfg.SaltLength]
	expected := raw[h.cfg.SaltLength:]
	computed := h.derive(password, salt)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *PBKDF2Hasher) derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, h.cfg.Iterations, h.cfg.KeyLength, sha256.New)
}
