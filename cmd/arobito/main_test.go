// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate", "status", "stop", "passwd"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigDirFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "separate value", args: []string{"--config-dir", "/etc/arobito", "status", "--help"}, want: "/etc/arobito"},
		{name: "with equals", args: []string{"--config-dir=/srv/arobito", "status", "--help"}, want: "/srv/arobito"},
		{name: "unset", args: []string{"status", "--help"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configDir = ""

			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.want, configDir)
		})
	}
}

func TestRootCommand_LoadsEnvFile(t *testing.T) {
	t.Setenv("AROBITO_CLI_TEST", "")
	require.NoError(t, os.Unsetenv("AROBITO_CLI_TEST"))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AROBITO_CLI_TEST=from-dotenv\n"), 0o600))

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--env-file", path, "status", "--socket", filepath.Join(t.TempDir(), "none.sock")})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "from-dotenv", os.Getenv("AROBITO_CLI_TEST"))
}
