// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"github.com/spf13/cobra"

	"github.com/arobito/arobito/internal/config"
)

// Global flags available to all subcommands.
var (
	configDir string
	dotEnv    string
)

// NewRootCmd creates the root command for the Arobito CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arobito",
		Short: "Arobito - remote control panel for robots",
		Long: `Arobito serves a small web control panel that authenticates operators,
tracks their sessions and lets administrators shut the robot down.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv(dotEnv)
		},
	}

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: search, or $AROBITO_CONF)")
	cmd.PersistentFlags().StringVar(&dotEnv, "env-file", ".env", "dotenv file loaded before anything else")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(NewStopCmd())
	cmd.AddCommand(NewPasswdCmd())

	return cmd
}
