// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package postgres provides a PostgreSQL-backed auth.IdentityStore.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

const usernameConstraint = "accounts_username_key"

// poolIface is the subset of *pgxpool.Pool used by the repository.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements auth.IdentityStore using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// LoadAll returns every account ordered by id.
func (r *AccountRepository) LoadAll(ctx context.Context) ([]auth.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, first_name, last_name, email, username, password_hash, role
		FROM accounts
		ORDER BY id
	`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	defer rows.Close()

	var accounts []auth.Account
	for rows.Next() {
		var (
			a    auth.Account
			role string
		)
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.Username, &a.PasswordHash, &role); err != nil {
			return nil, oops.Code("ACCOUNT_SCAN_FAILED").
				With("operation", "scan account").
				Wrap(err)
		}
		a.Role = auth.Role(role)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "iterate accounts").
			Wrap(err)
	}
	return accounts, nil
}

// Save inserts the account or replaces the row with the same id.
// A clash on email or username returns auth.ErrDuplicateAccount.
func (r *AccountRepository) Save(ctx context.Context, account auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, first_name, last_name, email, username, password_hash, role, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			updated_at = NOW()
	`,
		account.ID,
		account.FirstName,
		account.LastName,
		account.Email,
		account.Username,
		account.PasswordHash,
		string(account.Role),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(auth.CodeDuplicateAccount).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateAccount)
		}
		return oops.Code("ACCOUNT_SAVE_FAILED").
			With("operation", "upsert account").
			With("id", account.ID).
			Wrap(err)
	}
	return nil
}

// Create inserts a new account and never overwrites. A row already holding
// the id or username yields auth.ErrConflict; a taken email yields
// auth.ErrDuplicateAccount.
func (r *AccountRepository) Create(ctx context.Context, account auth.Account) error {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, first_name, last_name, email, username, password_hash, role
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`,
		account.ID,
		account.FirstName,
		account.LastName,
		account.Email,
		account.Username,
		account.PasswordHash,
		string(account.Role),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if pgErr.ConstraintName == usernameConstraint {
				return conflict(account, pgErr.ConstraintName)
			}
			return oops.Code(auth.CodeDuplicateAccount).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateAccount)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return conflict(account, "accounts_pkey")
	}
	return nil
}

// DeleteByID removes an account.
func (r *AccountRepository) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeAccountNotFound).
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks database connectivity. Used by the readiness check.
func (r *AccountRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return oops.Code("ACCOUNT_PING_FAILED").Wrap(err)
	}
	return nil
}

func conflict(account auth.Account, constraint string) error {
	return oops.Code(auth.CodeWriteConflict).
		With("id", account.ID).
		With("username", account.Username).
		With("constraint", constraint).
		Wrap(auth.ErrConflict)
}

// Compile-time interface checks.
var (
	_ auth.IdentityStore  = (*AccountRepository)(nil)
	_ auth.AccountCreator = (*AccountRepository)(nil)
)
