// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	MinSigningKeyLength = 32               // HS256 key length in bytes
	DefaultSessionTTL   = 30 * time.Minute // 30 minute expiry
	DefaultIssuer       = "gatekeep"
)

// SessionConfig configures session token signing.
type SessionConfig struct {
	SigningKey []byte
	TTL        time.Duration
	Issuer     string
}

// Validate checks the session configuration.
func (c SessionConfig) Validate() error {
	if len(c.SigningKey) == 0 {
		return oops.Code("SESSION_CONFIG_INVALID").Errorf("session signing key is required")
	}
	if len(c.SigningKey) < MinSigningKeyLength {
		return oops.Code("SESSION_CONFIG_INVALID").
			With("min_bytes", MinSigningKeyLength).
			Errorf("session signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if c.TTL <= 0 {
		return oops.Code("SESSION_CONFIG_INVALID").
			With("ttl", c.TTL.String()).
			Errorf("session ttl must be positive")
	}
	return nil
}

// SessionClaims is the signed claim set of a session token.
type SessionClaims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// AccountID returns the numeric account id carried in the subject claim.
func (c *SessionClaims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, oops.Code("SESSION_INVALID").With("subject", c.Subject).Wrap(err)
	}
	return id, nil
}

// Session is an issued session token plus display details.
type Session struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Username  string
	Role      Role
}

// SessionIssuer turns an authenticated account into a signed session token.
type SessionIssuer interface {
	Issue(account Account) (*Session, error)
}

// JWTIssuer issues HS256 JSON Web Tokens. It holds no session state.
type JWTIssuer struct {
	cfg SessionConfig
	now func() time.Time
}

// NewJWTIssuer creates a JWTIssuer after validating cfg.
func NewJWTIssuer(cfg SessionConfig) (*JWTIssuer, error) {
	return NewJWTIssuerWithClock(cfg, time.Now)
}

// NewJWTIssuerWithClock creates a JWTIssuer with an injected clock.
func NewJWTIssuerWithClock(cfg SessionConfig, now func() time.Time) (*JWTIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("clock is required")
	}
	return &JWTIssuer{cfg: cfg, now: now}, nil
}

// Issue signs a new session token for account.
func (i *JWTIssuer) Issue(account Account) (*Session, error) {
	issuedAt := i.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.cfg.TTL)
	tokenID := ulid.Make().String()

	claims := SessionClaims{
		Username: account.Username,
		Role:     account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			ID:        tokenID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SigningKey)
	if err != nil {
		return nil, oops.Code("SESSION_SIGN_FAILED").
			With("account_id", account.ID).
			Wrap(err)
	}

	return &Session{
		Token:     signed,
		TokenID:   tokenID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Username:  account.Username,
		Role:      account.Role,
	}, nil
}

// Parse verifies a session token's signature, issuer and expiry and returns its claims.
func (i *JWTIssuer) Parse(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	}
	if i.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.cfg.Issuer))
	}

	claims := &SessionClaims{}
	_, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.cfg.SigningKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
		}
		return nil, oops.Code("SESSION_INVALID").Wrap(err)
	}

	return claims, nil
}
