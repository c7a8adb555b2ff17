// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package mocks provides testify mocks of the auth collaborator interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// testingT is the subset of testing.TB the constructors need.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockIdentityStore is a mock of auth.IdentityStore.
type MockIdentityStore struct {
	mock.Mock
}

// NewMockIdentityStore creates a mock whose expectations are asserted on cleanup.
func NewMockIdentityStore(t testingT) *MockIdentityStore {
	m := &MockIdentityStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockIdentityStore) LoadAll(ctx context.Context) ([]auth.Account, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]auth.Account)
	return accounts, args.Error(1)
}

func (m *MockIdentityStore) Save(ctx context.Context, account auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockIdentityStore) DeleteByID(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock whose expectations are asserted on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, storedHash string) (bool, error) {
	args := m.Called(password, storedHash)
	return args.Bool(0), args.Error(1)
}

// MockAttemptTracker is a mock of auth.AttemptTracker.
type MockAttemptTracker struct {
	mock.Mock
}

// NewMockAttemptTracker creates a mock whose expectations are asserted on cleanup.
func NewMockAttemptTracker(t testingT) *MockAttemptTracker {
	m := &MockAttemptTracker{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAttemptTracker) RecordFailure(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptTracker) Reset(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *MockAttemptTracker) Failures(ctx context.Context, username string) (int, error) {
	args := m.Called(ctx, username)
	return args.Int(0), args.Error(1)
}

func (m *MockAttemptTracker) Locked(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

// MockSessionIssuer is a mock of auth.SessionIssuer.
type MockSessionIssuer struct {
	mock.Mock
}

// NewMockSessionIssuer creates a mock whose expectations are asserted on cleanup.
func NewMockSessionIssuer(t testingT) *MockSessionIssuer {
	m := &MockSessionIssuer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionIssuer) Issue(account auth.Account) (*auth.Session, error) {
	args := m.Called(account)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

// MockResetNotifier is a mock of auth.ResetNotifier.
type MockResetNotifier struct {
	mock.Mock
}

// NewMockResetNotifier creates a mock whose expectations are asserted on cleanup.
func NewMockResetNotifier(t testingT) *MockResetNotifier {
	m := &MockResetNotifier{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockResetNotifier) PasswordReset(ctx context.Context, account auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

var (
	_ auth.IdentityStore  = (*MockIdentityStore)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.AttemptTracker = (*MockAttemptTracker)(nil)
	_ auth.SessionIssuer  = (*MockSessionIssuer)(nil)
	_ auth.ResetNotifier  = (*MockResetNotifier)(nil)
)
