// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package xdg resolves the directories arobito reads configuration from and
// places runtime files in.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "arobito"

// EnvConfigDir names an explicit configuration directory. It takes priority
// over every searched location.
const EnvConfigDir = "AROBITO_CONF"

// SystemConfigDir is the machine-wide configuration directory.
const SystemConfigDir = "/etc/arobito"

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
	}
	return home, nil
}

// ConfigDir returns the XDG config directory for arobito.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// StateDir returns the XDG state directory for arobito.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() (string, error) {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", appName), nil
}

// RuntimeDir returns the XDG runtime directory for arobito.
// Checks XDG_RUNTIME_DIR first, falls back to StateDir()/run.
func RuntimeDir() (string, error) {
	if base := os.Getenv("XDG_RUNTIME_DIR"); base != "" {
		return filepath.Join(base, appName), nil
	}
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "run"), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// ConfigSearchPath lists candidate configuration directories from lowest to
// highest priority: the working directory, SystemConfigDir, ConfigDir,
// ~/.arobito and finally override (or $AROBITO_CONF when override is empty).
// Candidates that cannot be resolved are left out.
func ConfigSearchPath(override string) []string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	dirs = append(dirs, SystemConfigDir)
	if dir, err := ConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	if home, err := homeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+appName))
	}
	if override == "" {
		override = os.Getenv(EnvConfigDir)
	}
	if override != "" {
		dirs = append(dirs, override)
	}
	return dirs
}

// FindConfigDir returns the highest-priority existing directory from
// ConfigSearchPath. An explicit override that does not exist is an error.
func FindConfigDir(override string) (string, error) {
	explicit := override
	if explicit == "" {
		explicit = os.Getenv(EnvConfigDir)
	}
	if explicit != "" && !isDir(explicit) {
		return "", oops.Code("CONFIG_DIR_NOT_FOUND").
			With("path", explicit).
			Errorf("configuration directory does not exist")
	}

	found := ""
	for _, dir := range ConfigSearchPath(override) {
		if isDir(dir) {
			found = dir
		}
	}
	if found == "" {
		return "", oops.Code("CONFIG_DIR_NOT_FOUND").Errorf("no configuration directory found")
	}
	return found, nil
}

// ConfigFile returns the path of name inside dir, creating an empty file
// when it does not exist. It fails when the path exists but is not a
// regular file.
func ConfigFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return "", oops.Code("CONFIG_FILE_CREATE_FAILED").With("path", path).Wrap(err)
		}
		if err := f.Close(); err != nil {
			return "", oops.Code("CONFIG_FILE_CREATE_FAILED").With("path", path).Wrap(err)
		}
		return path, nil
	case err != nil:
		return "", oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	case !info.Mode().IsRegular():
		return "", oops.Code("CONFIG_FILE_INVALID").
			With("path", path).
			Errorf("not a regular file")
	}
	return path, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
