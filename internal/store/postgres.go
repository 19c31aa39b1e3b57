// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package store owns the PostgreSQL schema of the account backend and the
// connection setup shared by the server and the migrate command.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults.
const (
	DefaultConnectRetries   = 5
	DefaultConnectBaseDelay = 250 * time.Millisecond
	DefaultConnectMaxDelay  = 5 * time.Second
)

type connectConfig struct {
	retries   uint64
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
}

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

// WithRetries sets how many times a failed ping is retried.
func WithRetries(n uint64) ConnectOption {
	return func(c *connectConfig) { c.retries = n }
}

// WithBackoff sets the first retry delay and the cap on later delays.
func WithBackoff(base, maxDelay time.Duration) ConnectOption {
	return func(c *connectConfig) {
		if base > 0 {
			c.baseDelay = base
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithConnectLogger sets the logger used to report retries.
func WithConnectLogger(l *slog.Logger) ConnectOption {
	return func(c *connectConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Connect opens a pool for databaseURL and pings it, retrying with
// exponential backoff while the server is unreachable.
func Connect(ctx context.Context, databaseURL string, opts ...ConnectOption) (*pgxpool.Pool, error) {
	cfg := connectConfig{
		retries:   DefaultConnectRetries,
		baseDelay: DefaultConnectBaseDelay,
		maxDelay:  DefaultConnectMaxDelay,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DATABASE_CONFIG_INVALID").Wrap(err)
	}

	backoff := retry.NewExponential(cfg.baseDelay)
	backoff = retry.WithCappedDuration(cfg.maxDelay, backoff)
	backoff = retry.WithMaxRetries(cfg.retries, backoff)

	var pool *pgxpool.Pool
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			cfg.logger.Warn("database not reachable, retrying",
				"attempt", attempt,
				"host", poolCfg.ConnConfig.Host,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DATABASE_CONNECT_FAILED").
			With("host", poolCfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
