// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/auth/postgres"
	"github.com/gatekeep/gatekeep/internal/store"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

// TestMain sets up a PostgreSQL testcontainer and applies the accounts schema.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gatekeep_test"),
		tcpostgres.WithUsername("gatekeep"),
		tcpostgres.WithPassword("gatekeep"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create migrator: " + err.Error())
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}
	_ = migrator.Close()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}
	testPool = pool

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestAccountRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts`)
	})

	account := auth.Account{
		ID: 1, FirstName: "Alice", LastName: "Smith", Email: "alice@example.com",
		Username: "smithali", PasswordHash: "hash", Role: auth.RoleUser,
	}
	require.NoError(t, repo.Save(ctx, account))

	account.Email = "new@x.com"
	require.NoError(t, repo.Save(ctx, account))

	accounts, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, account, accounts[0])

	t.Run("duplicate email rejected", func(t *testing.T) {
		err := repo.Save(ctx, auth.Account{
			ID: 2, FirstName: "Eve", LastName: "Smith", Email: "new@x.com",
			Username: "smitheve", PasswordHash: "hash", Role: auth.RoleUser,
		})
		assert.ErrorIs(t, err, auth.ErrDuplicateAccount)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		err := repo.Save(ctx, auth.Account{
			ID: 3, FirstName: "Al", LastName: "Smith", Email: "al@example.com",
			Username: "smithali", PasswordHash: "hash", Role: auth.RoleUser,
		})
		assert.ErrorIs(t, err, auth.ErrDuplicateAccount)
	})

	t.Run("create never overwrites a taken id", func(t *testing.T) {
		err := repo.Create(ctx, auth.Account{
			ID: 1, FirstName: "Eve", LastName: "Jones", Email: "eve@example.com",
			Username: "joneseve", PasswordHash: "hash", Role: auth.RoleUser,
		})
		assert.ErrorIs(t, err, auth.ErrConflict)

		accounts, err := repo.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, account, accounts[0])
	})

	t.Run("create reports a taken username as a conflict", func(t *testing.T) {
		err := repo.Create(ctx, auth.Account{
			ID: 4, FirstName: "Al", LastName: "Smith", Email: "al@example.com",
			Username: "smithali", PasswordHash: "hash", Role: auth.RoleUser,
		})
		assert.ErrorIs(t, err, auth.ErrConflict)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteByID(ctx, 1))
		assert.ErrorIs(t, repo.DeleteByID(ctx, 1), auth.ErrNotFound)
	})
}

func TestAuthenticator_WithPostgres(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts`)
	})

	hasher, err := auth.NewPBKDF2Hasher(auth.HasherConfig{Iterations: auth.MinIterations, SaltLength: 16, KeyLength: 20})
	require.NoError(t, err)
	tracker, err := auth.NewMemoryAttemptTracker(auth.LockoutConfig{Threshold: 3})
	require.NoError(t, err)
	issuer, err := auth.NewJWTIssuer(auth.SessionConfig{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		TTL:        time.Minute,
		Issuer:     auth.DefaultIssuer,
	})
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator(postgres.NewAccountRepository(testPool), hasher, tracker, issuer)
	require.NoError(t, err)

	username, err := authn.Register(ctx, auth.RegisterRequest{
		FirstName: "Alice", LastName: "Smith", Email: "alice@example.com", Password: "Passw0rd!",
	})
	require.NoError(t, err)
	assert.Equal(t, "smithali", username)

	_, err = authn.Login(ctx, auth.LoginRequest{Username: username, Password: "Passw0rd!"})
	require.NoError(t, err)
}
