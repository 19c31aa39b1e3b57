// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arobito/arobito/internal/auth"
)

func TestCreateSalt(t *testing.T) {
	t.Run("honours length and never contains percent", func(t *testing.T) {
		for i := 0; i < 300; i++ {
			salt, err := auth.CreateSalt(i)
			require.NoError(t, err)
			assert.Len(t, salt, i)
			assert.False(t, strings.Contains(salt, "%"), "salt contains %%: %q", salt)
		}
	})

	t.Run("default length", func(t *testing.T) {
		salt, err := auth.CreateSalt(auth.DefaultSaltLength)
		require.NoError(t, err)
		assert.Len(t, salt, 128)
	})

	t.Run("rejects negative length", func(t *testing.T) {
		_, err := auth.CreateSalt(-1)
		assert.Error(t, err)
	})
}

func TestCreateSimpleKey(t *testing.T) {
	alnum := regexp.MustCompile(`^[a-zA-Z0-9]{64}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		key, err := auth.CreateSimpleKey(auth.DefaultKeyLength)
		require.NoError(t, err)
		assert.Regexp(t, alnum, key)
		_, dup := seen[key]
		assert.False(t, dup, "duplicate key generated")
		seen[key] = struct{}{}
	}
}
