// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package authtest provides test helpers for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/arobito/arobito/internal/auth"
)

// MemoryRepository is an in-memory auth.AccountRepository.
// Err* fields make the corresponding operation fail when set.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]auth.Account
	order    []string
	secret   string

	ErrLoadAccounts error
	ErrSaveAccounts error
	ErrLoadSecret   error
	ErrSaveSecret   error

	SaveAccountsCalls int
	SaveSecretCalls   int
}

// NewMemoryRepository creates a repository holding accounts and secret.
func NewMemoryRepository(secret string, accounts ...auth.Account) *MemoryRepository {
	r := &MemoryRepository{
		accounts: make(map[string]auth.Account),
		secret:   secret,
	}
	for _, a := range accounts {
		r.put(a)
	}
	return r
}

func (r *MemoryRepository) put(a auth.Account) {
	if _, ok := r.accounts[a.Username]; !ok {
		r.order = append(r.order, a.Username)
	}
	r.accounts[a.Username] = a
}

// LoadAccounts returns the stored accounts in insertion order.
func (r *MemoryRepository) LoadAccounts(_ context.Context) ([]auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ErrLoadAccounts != nil {
		return nil, r.ErrLoadAccounts
	}
	out := make([]auth.Account, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.accounts[name])
	}
	return out, nil
}

// SaveAccounts upserts accounts.
func (r *MemoryRepository) SaveAccounts(_ context.Context, accounts []auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SaveAccountsCalls++
	if r.ErrSaveAccounts != nil {
		return r.ErrSaveAccounts
	}
	for _, a := range accounts {
		r.put(a)
	}
	return nil
}

// LoadSecret returns the secret or auth.ErrNotFound.
func (r *MemoryRepository) LoadSecret(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ErrLoadSecret != nil {
		return "", r.ErrLoadSecret
	}
	if r.secret == "" {
		return "", auth.ErrNotFound
	}
	return r.secret, nil
}

// SaveSecret stores the secret.
func (r *MemoryRepository) SaveSecret(_ context.Context, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SaveSecretCalls++
	if r.ErrSaveSecret != nil {
		return r.ErrSaveSecret
	}
	r.secret = secret
	return nil
}

// Secret returns the stored secret.
func (r *MemoryRepository) Secret() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.secret
}

// Account returns the stored account for username.
func (r *MemoryRepository) Account(username string) (auth.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[username]
	return a, ok
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StaticVerifier accepts exactly one username/password pair.
type StaticVerifier struct {
	Username string
	Password string
	Level    string
	Now      func() time.Time
}

// Verify implements auth.Verifier.
func (v StaticVerifier) Verify(username, password string) (*auth.Principal, bool) {
	if username == "" || username != v.Username || password != v.Password {
		return nil, false
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	return &auth.Principal{
		Username:     username,
		Level:        v.Level,
		CreatedAt:    now,
		LastAccessAt: now,
	}, true
}
