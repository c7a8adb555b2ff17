// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/pkg/errutil"
)

// RegisterRequest carries the fields needed to create an account.
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Username string
	Password string
}

// LoginResult is returned from a successful login.
type LoginResult struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	Username  string
	Role      Role
}

// maxCreateAttempts bounds Register retries after an ErrConflict from the store.
const maxCreateAttempts = 5

// Authenticator orchestrates registration, login, password reset and profile updates.
type Authenticator struct {
	store    IdentityStore
	hasher   PasswordHasher
	tracker  AttemptTracker
	issuer   SessionIssuer
	notifier ResetNotifier
	metrics  *Metrics
	logger   *slog.Logger

	// dummyHash is verified against when a username is unknown so both
	// failure paths cost one key derivation.
	dummyHash string

	// mu serializes read-check-write sequences against the store.
	mu sync.Mutex
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger for best-effort failures and lockout events.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// WithNotifier sets the collaborator told about completed resets.
func WithNotifier(n ResetNotifier) Option {
	return func(a *Authenticator) { a.notifier = n }
}

// NewAuthenticator creates an Authenticator. All collaborators are required.
func NewAuthenticator(
	store IdentityStore,
	hasher PasswordHasher,
	tracker AttemptTracker,
	issuer SessionIssuer,
	opts ...Option,
) (*Authenticator, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if tracker == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("attempt tracker is required")
	}
	if issuer == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session issuer is required")
	}

	a := &Authenticator{
		store:   store,
		hasher:  hasher,
		tracker: tracker,
		issuer:  issuer,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}
	if a.notifier == nil {
		a.notifier = NewLogNotifier(a.logger)
	}

	dummy, err := hasher.Hash(ulid.Make().String())
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").
			With("operation", "hash dummy password").
			Wrap(err)
	}
	a.dummyHash = dummy

	return a, nil
}

// Register creates an account and returns its generated username.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if err := req.validate(); err != nil {
		a.metrics.registration(outcomeInvalidForm)
		return "", err
	}

	hash, err := a.hash(req.Password)
	if err != nil {
		a.metrics.registration(outcomeError)
		return "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for attempt := 1; ; attempt++ {
		accounts, err := a.store.LoadAll(ctx)
		if err != nil {
			a.metrics.registration(outcomeError)
			return "", oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "load accounts").
				Wrap(err)
		}

		for i := range accounts {
			if accounts[i].Email == req.Email {
				a.metrics.registration(outcomeDuplicate)
				return "", oops.Code(CodeDuplicateAccount).Wrap(ErrDuplicateAccount)
			}
		}

		account := Account{
			ID:           nextAccountID(accounts),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			Username:     uniqueUsername(DeriveUsername(req.FirstName, req.LastName), accounts),
			PasswordHash: hash,
			Role:         RoleUser,
		}

		err = a.create(ctx, account)
		switch {
		case err == nil:
			a.metrics.registration(outcomeSuccess)
			return account.Username, nil
		case errors.Is(err, ErrConflict) && attempt < maxCreateAttempts:
			// Another process claimed the id or username; reload and derive again.
			a.logger.DebugContext(ctx, "account create conflict, retrying",
				"attempt", attempt,
				"account_id", account.ID,
				"username", account.Username,
			)
			continue
		case errors.Is(err, ErrDuplicateAccount):
			a.metrics.registration(outcomeDuplicate)
			return "", err
		default:
			a.metrics.registration(outcomeError)
			return "", oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "save account").
				With("attempt", attempt).
				Wrap(err)
		}
	}
}

// create inserts a new account, using AccountCreator when the store has it.
func (a *Authenticator) create(ctx context.Context, account Account) error {
	if creator, ok := a.store.(AccountCreator); ok {
		return creator.Create(ctx, account) //nolint:wrapcheck // Register attaches operation context
	}
	return a.store.Save(ctx, account) //nolint:wrapcheck // Register attaches operation context
}

// Login authenticates a username and password and issues a session.
// Unknown usernames and wrong passwords fail identically with
// AUTH_INVALID_CREDENTIALS; reaching the failure threshold yields
// AUTH_LOCKED_PENDING_RESET until the password is reset.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	username := NormalizeUsername(req.Username)

	accounts, err := a.store.LoadAll(ctx)
	if err != nil {
		a.metrics.login(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	account, found := findByUsername(accounts, username)

	targetHash := a.dummyHash
	if found {
		targetHash = account.PasswordHash
	}

	// Always verify so unknown usernames cost the same as wrong passwords.
	valid, verifyErr := a.verify(req.Password, targetHash)
	if verifyErr != nil {
		if !found {
			valid = false
		} else {
			errutil.LogError(a.logger, "stored credential is corrupt", verifyErr)
			a.metrics.login(outcomeError)
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "verify password").
				Wrap(verifyErr)
		}
	}

	// Lockout is checked after verification to keep timing uniform.
	locked, err := a.tracker.Locked(ctx, username)
	if err != nil {
		a.metrics.login(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "check lockout").
			Wrap(err)
	}
	if locked {
		a.metrics.login(outcomeLocked)
		return nil, lockedPendingReset()
	}

	if !found || !valid {
		reached, err := a.tracker.RecordFailure(ctx, username)
		if err != nil {
			a.metrics.login(outcomeError)
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "record failure").
				Wrap(err)
		}
		if reached {
			a.logger.WarnContext(ctx, "failed-login threshold reached",
				"event", "lockout",
				"username", username,
			)
			a.metrics.lockout()
			a.metrics.login(outcomeLocked)
			return nil, lockedPendingReset()
		}
		a.metrics.login(outcomeInvalid)
		return nil, oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
	}

	if err := a.tracker.Reset(ctx, username); err != nil {
		a.logger.WarnContext(ctx, "best-effort failure counter reset failed",
			"operation", "reset_failures",
			"username", username,
			"error", err.Error(),
		)
	}

	session, err := a.issuer.Issue(account)
	if err != nil {
		a.metrics.login(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session").
			Wrap(err)
	}

	a.metrics.login(outcomeSuccess)
	return &LoginResult{
		Token:     session.Token,
		TokenID:   session.TokenID,
		ExpiresAt: session.ExpiresAt,
		Username:  session.Username,
		Role:      session.Role,
	}, nil
}

// Lookup returns the account for username.
func (a *Authenticator) Lookup(ctx context.Context, username string) (*Account, error) {
	accounts, err := a.store.LoadAll(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	account, found := findByUsername(accounts, NormalizeUsername(username))
	if !found {
		return nil, accountNotFound(username)
	}
	return &account, nil
}

// UpdateProfile applies patch to existing with merge-patch semantics and
// returns the result. Only non-empty patch fields overwrite; a new password
// is hashed and a new username is normalized. A field made of whitespace
// alone is rejected with AUTH_INVALID_REQUEST.
func (a *Authenticator) UpdateProfile(existing Account, patch AccountUpdate) (Account, error) {
	updated := existing

	fields := []struct {
		name  string
		raw   string
		value string
		dst   *string
	}{
		{"first_name", patch.FirstName, patch.FirstName, &updated.FirstName},
		{"last_name", patch.LastName, patch.LastName, &updated.LastName},
		{"email", patch.Email, strings.TrimSpace(patch.Email), &updated.Email},
		{"username", patch.Username, NormalizeUsername(patch.Username), &updated.Username},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if strings.TrimSpace(f.value) == "" {
			return existing, oops.Code(CodeInvalidRequest).
				With("field", f.name).
				Errorf("%s cannot be blank", f.name)
		}
		*f.dst = f.value
	}

	if patch.Password != "" {
		if err := CheckPassword(patch.Password); err != nil {
			return existing, oops.With("field", "password").Wrap(err)
		}
		hash, err := a.hash(patch.Password)
		if err != nil {
			return existing, oops.Code("AUTH_UPDATE_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		updated.PasswordHash = hash
	}
	return updated, nil
}

// UpdateAccount merge-patches the account identified by username and persists it.
// A rename is refused while the current username is locked, and the failure
// counter of the old username is cleared once the rename is stored.
func (a *Authenticator) UpdateAccount(ctx context.Context, username string, patch AccountUpdate) (*Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	accounts, err := a.store.LoadAll(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	existing, found := findByUsername(accounts, NormalizeUsername(username))
	if !found {
		return nil, accountNotFound(username)
	}

	updated, err := a.UpdateProfile(existing, patch)
	if err != nil {
		return nil, err
	}

	for i := range accounts {
		other := accounts[i]
		if other.ID == updated.ID {
			continue
		}
		if other.Email == updated.Email || other.Username == updated.Username {
			return nil, oops.Code(CodeDuplicateAccount).Wrap(ErrDuplicateAccount)
		}
	}

	renamed := updated.Username != existing.Username
	if renamed {
		locked, err := a.tracker.Locked(ctx, existing.Username)
		if err != nil {
			return nil, oops.Code("AUTH_UPDATE_FAILED").
				With("operation", "check lockout").
				Wrap(err)
		}
		if locked {
			return nil, lockedPendingReset()
		}
	}

	if err := a.store.Save(ctx, updated); err != nil {
		return nil, oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "save account").
			With("account_id", updated.ID).
			Wrap(err)
	}

	if renamed {
		if err := a.tracker.Reset(ctx, existing.Username); err != nil {
			a.logger.WarnContext(ctx, "best-effort failure counter reset failed",
				"operation", "reset_failures",
				"username", existing.Username,
				"error", err.Error(),
			)
		}
	}

	return &updated, nil
}

// SetRole changes the role tag of the account identified by username.
func (a *Authenticator) SetRole(ctx context.Context, username string, role Role) (*Account, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	accounts, err := a.store.LoadAll(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	account, found := findByUsername(accounts, NormalizeUsername(username))
	if !found {
		return nil, accountNotFound(username)
	}

	account.Role = role
	if err := a.store.Save(ctx, account); err != nil {
		return nil, oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "save account").
			With("account_id", account.ID).
			Wrap(err)
	}
	return &account, nil
}

// DeleteAccount removes the account identified by username and clears its failure counter.
func (a *Authenticator) DeleteAccount(ctx context.Context, username string) error {
	normalized := NormalizeUsername(username)

	a.mu.Lock()
	defer a.mu.Unlock()

	accounts, err := a.store.LoadAll(ctx)
	if err != nil {
		return oops.Code("AUTH_DELETE_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}
	account, found := findByUsername(accounts, normalized)
	if !found {
		return accountNotFound(username)
	}

	if err := a.store.DeleteByID(ctx, account.ID); err != nil {
		return oops.Code("AUTH_DELETE_FAILED").
			With("operation", "delete account").
			With("account_id", account.ID).
			Wrap(err)
	}

	if err := a.tracker.Reset(ctx, normalized); err != nil {
		a.logger.WarnContext(ctx, "best-effort failure counter reset failed",
			"operation", "reset_failures",
			"username", normalized,
			"error", err.Error(),
		)
	}
	return nil
}

// Unlock clears the failure counter for username. This is the administrative reset.
func (a *Authenticator) Unlock(ctx context.Context, username string) error {
	if err := a.tracker.Reset(ctx, NormalizeUsername(username)); err != nil {
		return oops.Code("AUTH_UNLOCK_FAILED").
			With("operation", "reset failures").
			Wrap(err)
	}
	return nil
}

func (a *Authenticator) hash(password string) (string, error) {
	start := time.Now()
	hash, err := a.hasher.Hash(password)
	a.metrics.observeHash(time.Since(start))
	return hash, err //nolint:wrapcheck // callers attach operation context
}

func (a *Authenticator) verify(password, storedHash string) (bool, error) {
	start := time.Now()
	ok, err := a.hasher.Verify(password, storedHash)
	a.metrics.observeHash(time.Since(start))
	return ok, err //nolint:wrapcheck // callers attach operation context
}

func (r RegisterRequest) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"email", r.Email},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return oops.Code(CodeInvalidRequest).
				With("field", f.name).
				Errorf("%s is required", f.name)
		}
	}
	if err := CheckPassword(r.Password); err != nil {
		return oops.With("field", "password").Wrap(err)
	}
	return nil
}

func lockedPendingReset() error {
	return oops.Code(CodeLockedPendingReset).Wrap(ErrLockedPendingReset)
}

func accountNotFound(username string) error {
	return oops.Code(CodeAccountNotFound).
		With("username", username).
		Wrap(ErrNotFound)
}
