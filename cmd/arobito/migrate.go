// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/arobito/arobito/internal/config"
	"github.com/arobito/arobito/internal/store"
)

// migrator wraps the methods used from store.Migrator.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	PendingMigrations() ([]uint, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL account schema",
		Long: `Apply or roll back the database migrations used by the postgres
credential backend. The database URL defaults to $DATABASE_URL.`,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(databaseURL, func(m migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("Database is up to date")
					return nil
				}
				cmd.Printf("Applying %d migration(s)...\n", len(pending))
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(databaseURL, func(m migrator) error {
				if err := m.Down(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(databaseURL, func(m migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				state := "clean"
				if dirty {
					state = "dirty"
				}
				cmd.Printf("version %d (%s), %d pending\n", v, state, len(pending))
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(databaseURL string, fn func(migrator) error) error {
	if databaseURL == "" {
		databaseURL = os.Getenv(config.EnvDatabaseURL)
	}
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable or --database-url is required")
	}

	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return fn(m)
}
