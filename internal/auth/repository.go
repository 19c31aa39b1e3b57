// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth

import "context"

// AccountRepository persists accounts and the realm secret.
//
// Implementations must make each save atomic: a subsequent load in the same
// process observes either the previous or the new state, never a mix.
type AccountRepository interface {
	// LoadAccounts returns every stored account. An empty store yields an
	// empty slice and no error.
	LoadAccounts(ctx context.Context) ([]Account, error)

	// SaveAccounts stores the given accounts, replacing stored accounts with
	// the same username.
	SaveAccounts(ctx context.Context, accounts []Account) error

	// LoadSecret returns the realm secret, or ErrNotFound if none is stored.
	LoadSecret(ctx context.Context) (string, error)

	// SaveSecret stores the realm secret.
	SaveSecret(ctx context.Context, secret string) error
}
