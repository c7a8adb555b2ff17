// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package filestore implements auth.IdentityStore on a single JSON file.
//
// The file is read once on first use and kept in memory. Every mutation
// rewrites the whole file through a temporary file and a rename, so a crash
// leaves either the old or the new content on disk.
package filestore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/xdg"
)

// DefaultFileName is the accounts file name inside the data directory.
const DefaultFileName = "accounts.json"

const filePerm fs.FileMode = 0o600

// DefaultPath returns the accounts file inside the XDG data directory.
func DefaultPath() string {
	return filepath.Join(xdg.DataDir(), DefaultFileName)
}

// Store is a JSON-file IdentityStore.
type Store struct {
	path string

	mu       sync.RWMutex
	loaded   bool
	accounts []auth.Account
}

// New returns a store backed by path. The file is created on the first write.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, oops.Code("FILESTORE_PATH_REQUIRED").Errorf("accounts file path is required")
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// LoadAll returns a copy of every account ordered by ID.
func (s *Store) LoadAll(_ context.Context) ([]auth.Account, error) {
	s.mu.RLock()
	if s.loaded {
		out := slices.Clone(s.accounts)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return slices.Clone(s.accounts), nil
}

// Save inserts or replaces the account with the same ID and flushes the file.
func (s *Store) Save(_ context.Context, account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	next := slices.Clone(s.accounts)
	idx := slices.IndexFunc(next, func(a auth.Account) bool { return a.ID == account.ID })
	if idx >= 0 {
		next[idx] = account
	} else {
		next = append(next, account)
		slices.SortFunc(next, byID)
	}

	if err := s.flush(next); err != nil {
		return oops.Code("FILESTORE_SAVE_FAILED").With("id", account.ID).Wrap(err)
	}
	s.accounts = next
	return nil
}

// Create appends a new account and flushes the file. It never overwrites:
// a taken id or username yields auth.ErrConflict and a taken email
// auth.ErrDuplicateAccount.
func (s *Store) Create(_ context.Context, account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	for i := range s.accounts {
		existing := s.accounts[i]
		switch {
		case existing.ID == account.ID || existing.Username == account.Username:
			return oops.Code(auth.CodeWriteConflict).
				With("id", account.ID).
				With("username", account.Username).
				Wrap(auth.ErrConflict)
		case existing.Email == account.Email:
			return oops.Code(auth.CodeDuplicateAccount).
				With("id", account.ID).
				Wrap(auth.ErrDuplicateAccount)
		}
	}

	next := append(slices.Clone(s.accounts), account)
	slices.SortFunc(next, byID)
	if err := s.flush(next); err != nil {
		return oops.Code("FILESTORE_SAVE_FAILED").With("id", account.ID).Wrap(err)
	}
	s.accounts = next
	return nil
}

// DeleteByID removes the account and flushes the file.
func (s *Store) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	idx := slices.IndexFunc(s.accounts, func(a auth.Account) bool { return a.ID == id })
	if idx < 0 {
		return oops.Code(auth.CodeAccountNotFound).With("id", id).Wrap(auth.ErrNotFound)
	}

	next := slices.Delete(slices.Clone(s.accounts), idx, idx+1)
	if err := s.flush(next); err != nil {
		return oops.Code("FILESTORE_DELETE_FAILED").With("id", id).Wrap(err)
	}
	s.accounts = next
	return nil
}

// Ping reports whether the backing file is readable. A missing file is healthy.
func (s *Store) Ping(_ context.Context) error {
	_, err := os.Stat(s.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return oops.Code("FILESTORE_UNAVAILABLE").With("path", s.path).Wrap(err)
}

// ensureLoaded reads the file once. Callers hold the write lock.
func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.accounts = nil
	case err != nil:
		return oops.Code("FILESTORE_READ_FAILED").With("path", s.path).Wrap(err)
	case len(data) == 0:
		s.accounts = nil
	default:
		var accounts []auth.Account
		if err := json.Unmarshal(data, &accounts); err != nil {
			return oops.Code("FILESTORE_CORRUPT").With("path", s.path).Wrap(err)
		}
		slices.SortFunc(accounts, byID)
		s.accounts = accounts
	}

	s.loaded = true
	return nil
}

func (s *Store) flush(accounts []auth.Account) error {
	if accounts == nil {
		accounts = []auth.Account{}
	}
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return oops.With("operation", "encode").Wrap(err)
	}

	dir := filepath.Dir(s.path)
	if err := xdg.EnsureDir(dir); err != nil {
		return oops.With("operation", "create directory").Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return oops.With("operation", "create temp file").Wrap(err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return oops.With("operation", "chmod").Wrap(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return oops.With("operation", "write").Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return oops.With("operation", "sync").Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.With("operation", "close").Wrap(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return oops.With("operation", "rename").Wrap(err)
	}
	return nil
}

var (
	_ auth.IdentityStore  = (*Store)(nil)
	_ auth.AccountCreator = (*Store)(nil)
)

func byID(a, b auth.Account) int {
	return cmp.Compare(a.ID, b.ID)
}
