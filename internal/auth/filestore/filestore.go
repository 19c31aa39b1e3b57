// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package filestore persists accounts and the realm secret in a YAML file.
//
// The document is a mapping of sections. The "_Config_" section holds the
// realm secret; each "User:<name>" section holds one account:
//
//	_Config_:
//	  secret: "..."
//	User:arobito:
//	  level: Administrator
//	  salt: "..."
//	  password: 9f86d0...
//	  enabled: "yes"
package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/arobito/arobito/internal/auth"
)

// Section names and keys of the accounts document.
const (
	ConfigSection     = "_Config_"
	UserSectionPrefix = "User:"

	keySecret   = "secret"
	keyLevel    = "level"
	keySalt     = "salt"
	keyPassword = "password"
	keyEnabled  = "enabled"
)

// Repository implements auth.AccountRepository on a single YAML file.
// Writes replace the file atomically and are serialized.
type Repository struct {
	path string
	mu   sync.Mutex
}

// Compile-time interface check.
var _ auth.AccountRepository = (*Repository)(nil)

// New returns a repository backed by path. The file is created on the first
// write; a missing file reads as empty.
func New(path string) *Repository {
	return &Repository{path: path}
}

// Path returns the backing file path.
func (r *Repository) Path() string {
	return r.path
}

// LoadAccounts returns every User section in file order.
func (r *Repository) LoadAccounts(_ context.Context) ([]auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return nil, err
	}

	var accounts []auth.Account
	for _, s := range doc.sections {
		name, ok := strings.CutPrefix(s.name, UserSectionPrefix)
		if !ok {
			continue
		}
		accounts = append(accounts, auth.Account{
			Username:     name,
			Level:        s.values[keyLevel],
			Salt:         s.values[keySalt],
			PasswordHash: s.values[keyPassword],
			Enabled:      parseEnabled(s.values[keyEnabled]),
		})
	}
	return accounts, nil
}

// SaveAccounts writes each account into its User section, creating sections
// as needed. Other sections and keys are preserved.
func (r *Repository) SaveAccounts(_ context.Context, accounts []auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	putAccounts(doc, accounts)
	return r.write(doc)
}

func putAccounts(doc *document, accounts []auth.Account) {
	for _, a := range accounts {
		s := doc.section(UserSectionPrefix + a.Username)
		s.set(keyLevel, a.Level)
		s.set(keySalt, a.Salt)
		s.set(keyPassword, a.PasswordHash)
		if a.Enabled != nil {
			s.set(keyEnabled, formatEnabled(*a.Enabled))
		}
	}
}

// EncodeAccounts renders accounts as User sections in the file format, for
// pasting into an accounts file by hand.
func EncodeAccounts(accounts ...auth.Account) ([]byte, error) {
	doc := &document{}
	putAccounts(doc, accounts)
	data, err := doc.encode()
	if err != nil {
		return nil, oops.Code("ACCOUNTS_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}

// LoadSecret returns the realm secret, or auth.ErrNotFound when the file has
// none.
func (r *Repository) LoadSecret(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return "", err
	}
	s := doc.lookup(ConfigSection)
	if s == nil || s.values[keySecret] == "" {
		return "", auth.ErrNotFound
	}
	return s.values[keySecret], nil
}

// SaveSecret stores the realm secret.
func (r *Repository) SaveSecret(_ context.Context, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	doc.section(ConfigSection).set(keySecret, secret)
	return r.write(doc)
}

func (r *Repository) read() (*document, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, oops.Code("ACCOUNTS_FILE_READ_FAILED").
			With("path", r.path).
			Wrap(err)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, oops.Code("ACCOUNTS_FILE_INVALID").
			With("path", r.path).
			Wrap(err)
	}
	return doc, nil
}

// write replaces the file via a temporary sibling: write, sync, close,
// rename, then sync the parent directory.
func (r *Repository) write(doc *document) error {
	data, err := doc.encode()
	if err != nil {
		return oops.Code("ACCOUNTS_FILE_WRITE_FAILED").
			With("path", r.path).
			With("operation", "encode").
			Wrap(err)
	}

	tmp := r.path + ".tmp"
	fail := func(operation string, err error) error {
		_ = os.Remove(tmp)
		return oops.Code("ACCOUNTS_FILE_WRITE_FAILED").
			With("path", r.path).
			With("operation", operation).
			Wrap(err)
	}

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fail("create temporary file", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fail("write temporary file", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fail("sync temporary file", err)
	}
	if err := f.Close(); err != nil {
		return fail("close temporary file", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fail("rename into place", err)
	}

	if dir, err := os.Open(filepath.Dir(r.path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// parseEnabled enables an account only for "yes", compared case-insensitively.
// Any other value disables it; an empty value is treated as missing.
func parseEnabled(v string) *bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return auth.Bool(strings.EqualFold(v, "yes"))
}

func formatEnabled(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
