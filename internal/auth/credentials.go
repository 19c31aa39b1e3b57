// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Well-known bootstrap credentials, written only when the repository holds
// no account at all.
const (
	DefaultUsername = "arobito"
	DefaultPassword = "arobito"
)

// Verifier checks a username and password and yields a Principal on match.
type Verifier interface {
	Verify(username, password string) (*Principal, bool)
}

// CredentialStore verifies passwords against accounts loaded from an
// AccountRepository. It is immutable after construction.
type CredentialStore struct {
	secret   string
	accounts map[string]Account
	hasher   PasswordHasher
	now      func() time.Time
	logger   *slog.Logger

	defaultUsername string
	defaultPassword string
}

// CredentialOption configures a CredentialStore.
type CredentialOption func(*CredentialStore)

// WithHasher sets the password hasher. The default is NewSHA512Hasher.
func WithHasher(h PasswordHasher) CredentialOption {
	return func(s *CredentialStore) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithClock sets the time source used for Principal timestamps.
func WithClock(now func() time.Time) CredentialOption {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CredentialOption {
	return func(s *CredentialStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultAccount overrides the credentials of the bootstrap administrator.
func WithDefaultAccount(username, password string) CredentialOption {
	return func(s *CredentialStore) {
		s.defaultUsername = username
		s.defaultPassword = password
	}
}

// NewCredentialStore loads accounts from repo, bootstrapping the realm secret
// and the default administrator when they are missing.
//
// Any repository failure is returned; callers treat it as fatal to
// authentication, not to the process.
func NewCredentialStore(ctx context.Context, repo AccountRepository, opts ...CredentialOption) (*CredentialStore, error) {
	if repo == nil {
		return nil, oops.Code("CREDENTIALS_INIT_FAILED").Errorf("account repository is required")
	}

	s := &CredentialStore{
		hasher:          NewSHA512Hasher(),
		now:             time.Now,
		logger:          slog.Default(),
		defaultUsername: DefaultUsername,
		defaultPassword: DefaultPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := ValidateUsername(s.defaultUsername); err != nil {
		return nil, oops.Code("CREDENTIALS_INIT_FAILED").
			With("operation", "validate default account").
			Wrap(err)
	}

	secret, err := s.loadOrCreateSecret(ctx, repo)
	if err != nil {
		return nil, err
	}
	s.secret = secret

	accounts, err := repo.LoadAccounts(ctx)
	if err != nil {
		return nil, oops.Code("CREDENTIALS_INIT_FAILED").
			With("operation", "load accounts").
			Wrap(err)
	}

	if len(accounts) == 0 {
		account, err := s.defaultAccount()
		if err != nil {
			return nil, err
		}
		if err := repo.SaveAccounts(ctx, []Account{account}); err != nil {
			return nil, oops.Code("CREDENTIALS_INIT_FAILED").
				With("operation", "save default account").
				With("username", account.Username).
				Wrap(err)
		}
		s.logger.Warn("created default administrator account, change its password",
			"username", account.Username,
		)
		accounts = []Account{account}
	}

	s.accounts = make(map[string]Account, len(accounts))
	for _, a := range accounts {
		s.accounts[a.Username] = a
	}

	s.logger.Info("credential store ready", "accounts", len(s.accounts))
	return s, nil
}

func (s *CredentialStore) loadOrCreateSecret(ctx context.Context, repo AccountRepository) (string, error) {
	secret, err := repo.LoadSecret(ctx)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", oops.Code("CREDENTIALS_INIT_FAILED").
			With("operation", "load realm secret").
			Wrap(err)
	}

	secret, err = CreateSalt(DefaultSaltLength)
	if err != nil {
		return "", oops.Code("CREDENTIALS_INIT_FAILED").
			With("operation", "generate realm secret").
			Wrap(err)
	}
	if err := repo.SaveSecret(ctx, secret); err != nil {
		return "", oops.Code("CREDENTIALS_INIT_FAILED").
			With("operation", "save realm secret").
			Wrap(err)
	}
	s.logger.Info("generated realm secret")
	return secret, nil
}

func (s *CredentialStore) defaultAccount() (Account, error) {
	salt, err := CreateSalt(DefaultSaltLength)
	if err != nil {
		return Account{}, oops.Code("CREDENTIALS_INIT_FAILED").
			With("operation", "generate default salt").
			Wrap(err)
	}
	hash, err := s.hasher.Hash(s.defaultPassword, salt, s.secret)
	if err != nil {
		return Account{}, oops.Code("CREDENTIALS_INIT_FAILED").
			With("operation", "hash default password").
			Wrap(err)
	}
	return Account{
		Username:     s.defaultUsername,
		Level:        LevelAdministrator,
		Salt:         salt,
		PasswordHash: hash,
		Enabled:      Bool(true),
	}, nil
}

// Verify returns the Principal for username when password matches an
// enabled, complete account. Every kind of mismatch yields (nil, false).
func (s *CredentialStore) Verify(username, password string) (*Principal, bool) {
	if username == "" || password == "" {
		return nil, false
	}
	if !usernameRegex.MatchString(username) {
		return nil, false
	}
	account, ok := s.accounts[username]
	if !ok {
		return nil, false
	}
	if !account.IsComplete() || !account.IsEnabled() {
		return nil, false
	}
	if !s.hasher.Verify(password, account.Salt, s.secret, account.PasswordHash) {
		return nil, false
	}

	now := s.now()
	return &Principal{
		Username:     account.Username,
		Level:        account.Level,
		CreatedAt:    now,
		LastAccessAt: now,
	}, true
}

// HashFor hashes password for a new account with the given salt under this
// store's realm secret. Used to provision accounts out of band.
func (s *CredentialStore) HashFor(password, salt string) (string, error) {
	return s.hasher.Hash(password, salt, s.secret)
}

// AccountCount returns the number of loaded accounts.
func (s *CredentialStore) AccountCount() int {
	return len(s.accounts)
}
