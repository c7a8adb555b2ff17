// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// Role is the flat role tag carried by an account.
type Role string

// Supported roles.
const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", oops.Code(CodeInvalidRequest).
			With("role", s).
			Errorf("unknown role %q", s)
	}
}

// usernamePrefixLength is the number of first-name characters used in a derived username.
const usernamePrefixLength = 3

// Account is an identity record owned by an IdentityStore.
type Account struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Role         Role   `json:"role"`
}

// AccountUpdate carries merge-patch fields for an account.
// Empty fields leave the existing value untouched.
type AccountUpdate struct {
	FirstName string
	LastName  string
	Email     string
	Username  string
	Password  string
}

// IsEmpty reports whether the update would change nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.FirstName == "" && u.LastName == "" && u.Email == "" && u.Username == "" && u.Password == ""
}

// IdentityStore persists accounts. Implementations must be durable once a
// mutating call returns.
type IdentityStore interface {
	// LoadAll returns every stored account ordered by ID.
	LoadAll(ctx context.Context) ([]Account, error)

	// Save inserts the account or replaces the stored account with the same ID.
	Save(ctx context.Context, account Account) error

	// DeleteByID removes an account. Returns ErrNotFound if no account has the ID.
	DeleteByID(ctx context.Context, id int64) error
}

// AccountCreator is implemented by stores that can insert an account without
// overwriting. Create fails with ErrConflict when a stored account already
// holds the ID or username, and with ErrDuplicateAccount when the email is
// taken. Register prefers Create over Save when the store provides it.
type AccountCreator interface {
	Create(ctx context.Context, account Account) error
}

// NormalizeUsername returns the canonical lowercase form of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// DeriveUsername builds the default username for a new account: the lowercased
// last name followed by the first three characters of the lowercased first name.
func DeriveUsername(firstName, lastName string) string {
	first := []rune(strings.ToLower(firstName))
	if len(first) > usernamePrefixLength {
		first = first[:usernamePrefixLength]
	}
	return strings.ToLower(lastName) + string(first)
}

// uniqueUsername returns base if unused, otherwise base with the smallest
// numeric suffix (starting at 2) that no existing account holds.
func uniqueUsername(base string, accounts []Account) string {
	taken := make(map[string]struct{}, len(accounts))
	for i := range accounts {
		taken[accounts[i].Username] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + strconv.Itoa(n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// nextAccountID returns one more than the highest existing ID.
func nextAccountID(accounts []Account) int64 {
	var maxID int64
	for i := range accounts {
		if accounts[i].ID > maxID {
			maxID = accounts[i].ID
		}
	}
	return maxID + 1
}

func findByUsername(accounts []Account, username string) (Account, bool) {
	for i := range accounts {
		if accounts[i].Username == username {
			return accounts[i], true
		}
	}
	return Account{}, false
}
