// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arobito/arobito/internal/auth"
	"github.com/arobito/arobito/internal/auth/filestore"
	"github.com/arobito/arobito/internal/config"
	"github.com/arobito/arobito/internal/logging"
	"github.com/arobito/arobito/internal/xdg"
)

// passwdConfig holds configuration for the passwd command.
type passwdConfig struct {
	level    string
	disabled bool
	save     bool
}

// NewPasswdCmd creates the passwd subcommand.
func NewPasswdCmd() *cobra.Command {
	cfg := &passwdConfig{}

	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Hash a password for an account",
		Long: `Prompt for a password and hash it with a fresh salt under the realm
secret of the configured credential backend. The account is printed as a
User section for the accounts file, or stored directly with --save.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.Setup(serviceName, version,
				logging.Options{Format: "text", Level: slog.LevelWarn}, cmd.ErrOrStderr())

			dir, err := xdg.FindConfigDir(configDir)
			if err != nil {
				return err
			}
			appCfg, err := config.Load(dir, nil)
			if err != nil {
				return err
			}
			repo, closeRepo, err := openRepository(ctx, appCfg, logger)
			if err != nil {
				return err
			}
			defer closeRepo()

			return runPasswd(ctx, cmd, cfg, args[0], repo, logger)
		},
	}

	cmd.Flags().StringVar(&cfg.level, "level", auth.LevelAdministrator, "privilege level of the account")
	cmd.Flags().BoolVar(&cfg.disabled, "disabled", false, "mark the account as disabled")
	cmd.Flags().BoolVar(&cfg.save, "save", false, "write the account to the credential backend instead of printing it")

	return cmd
}

func runPasswd(ctx context.Context, cmd *cobra.Command, cfg *passwdConfig, username string, repo auth.AccountRepository, logger *slog.Logger) error {
	if err := auth.ValidateUsername(username); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.level) == "" {
		return oops.Code("PASSWD_INVALID_LEVEL").Errorf("level must not be empty")
	}

	creds, err := auth.NewCredentialStore(ctx, repo, auth.WithLogger(logger))
	if err != nil {
		return err
	}

	password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	salt, err := auth.CreateSalt(auth.DefaultSaltLength)
	if err != nil {
		return err
	}
	hash, err := creds.HashFor(password, salt)
	if err != nil {
		return err
	}
	account := auth.Account{
		Username:     username,
		Level:        cfg.level,
		Salt:         salt,
		PasswordHash: hash,
		Enabled:      auth.Bool(!cfg.disabled),
	}

	if cfg.save {
		if err := repo.SaveAccounts(ctx, []auth.Account{account}); err != nil {
			return err
		}
		cmd.Printf("Account %q saved\n", username)
		return nil
	}

	data, err := filestore.EncodeAccounts(account)
	if err != nil {
		return err
	}
	cmd.Print(string(data))
	return nil
}

// readPassword prompts twice without echo when in is a terminal, and reads
// a single line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		fd := int(f.Fd()) //nolint:gosec // fd fits in int
		_, _ = fmt.Fprint(prompt, "New password: ")
		first, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", oops.Code("PASSWD_READ_FAILED").Wrap(err)
		}
		_, _ = fmt.Fprint(prompt, "Repeat password: ")
		second, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", oops.Code("PASSWD_READ_FAILED").Wrap(err)
		}
		if string(first) != string(second) {
			return "", oops.Code("PASSWD_MISMATCH").Errorf("passwords do not match")
		}
		return checkPassword(string(first))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWD_READ_FAILED").Wrap(err)
	}
	return checkPassword(strings.TrimRight(line, "\r\n"))
}

func checkPassword(password string) (string, error) {
	if password == "" {
		return "", oops.Code("PASSWD_EMPTY").Errorf("password must not be empty")
	}
	return password, nil
}
