// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package postgres stores accounts and the realm secret in PostgreSQL.
// The schema is owned by internal/store migrations.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/arobito/arobito/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used by the repository.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// LoadAccounts returns every account in creation order.
func (r *AccountRepository) LoadAccounts(ctx context.Context) ([]auth.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT username, level, salt, password_hash, enabled
		FROM accounts
		ORDER BY created_at, username
	`)
	if err != nil {
		return nil, wrapErr("ACCOUNTS_LOAD_FAILED", "query accounts", err)
	}
	defer rows.Close()

	var accounts []auth.Account
	for rows.Next() {
		var a auth.Account
		if err := rows.Scan(&a.Username, &a.Level, &a.Salt, &a.PasswordHash, &a.Enabled); err != nil {
			return nil, wrapErr("ACCOUNTS_LOAD_FAILED", "scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("ACCOUNTS_LOAD_FAILED", "iterate accounts", err)
	}
	return accounts, nil
}

// SaveAccounts upserts accounts in a single transaction.
func (r *AccountRepository) SaveAccounts(ctx context.Context, accounts []auth.Account) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrapErr("ACCOUNTS_SAVE_FAILED", "begin transaction", err)
	}

	for _, a := range accounts {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (username, level, salt, password_hash, enabled)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (username) DO UPDATE SET
				level = EXCLUDED.level,
				salt = EXCLUDED.salt,
				password_hash = EXCLUDED.password_hash,
				enabled = EXCLUDED.enabled,
				updated_at = now()
		`, a.Username, a.Level, a.Salt, a.PasswordHash, a.Enabled)
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // upsert error takes precedence
			return oops.With("username", a.Username).
				Wrap(wrapErr("ACCOUNTS_SAVE_FAILED", "upsert account", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("ACCOUNTS_SAVE_FAILED", "commit transaction", err)
	}
	return nil
}

// LoadSecret returns the realm secret, or auth.ErrNotFound when none is stored.
func (r *AccountRepository) LoadSecret(ctx context.Context) (string, error) {
	var secret string
	err := r.pool.QueryRow(ctx, `SELECT secret FROM realm_secret WHERE id = 1`).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", wrapErr("SECRET_LOAD_FAILED", "query realm secret", err)
	}
	return secret, nil
}

// SaveSecret stores the realm secret, replacing any previous one.
func (r *AccountRepository) SaveSecret(ctx context.Context, secret string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO realm_secret (id, secret) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET secret = EXCLUDED.secret
	`, secret)
	if err != nil {
		return wrapErr("SECRET_SAVE_FAILED", "upsert realm secret", err)
	}
	return nil
}

// wrapErr maps an undefined table to ACCOUNTS_SCHEMA_MISSING.
func wrapErr(code, operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return oops.Code("ACCOUNTS_SCHEMA_MISSING").
			With("operation", operation).
			Hint("run 'arobito migrate up'").
			Wrap(err)
	}
	return oops.Code(code).With("operation", operation).Wrap(err)
}
