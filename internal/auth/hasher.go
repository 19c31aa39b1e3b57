// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// DefaultHashRounds is the number of digest rounds applied to a password.
const DefaultHashRounds = 1000

var (
	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

	// ErrInvalidRounds is returned when the round count is not positive.
	ErrInvalidRounds = oops.Code("AUTH_INVALID_ROUNDS").Errorf("hash rounds must be positive")
)

// HashPassword derives a hex-encoded SHA-512 digest from password.
//
// The realm secret is appended to the password once. Each round then appends
// the salt and replaces the accumulator with the hex digest of itself. An
// empty salt or secret contributes nothing. The result is deterministic for
// identical arguments, which is what makes equality-based verification work.
func HashPassword(password, salt string, rounds int, secret string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if rounds <= 0 {
		return "", oops.Code("AUTH_INVALID_ROUNDS").
			With("rounds", rounds).
			Wrap(ErrInvalidRounds)
	}

	data := password + secret
	for range rounds {
		data += salt
		sum := sha512.Sum512([]byte(data))
		data = hex.EncodeToString(sum[:])
	}
	return data, nil
}

// PasswordHasher hashes and verifies passwords keyed by a salt and a realm secret.
type PasswordHasher interface {
	// Hash produces the stored representation of password.
	Hash(password, salt, secret string) (string, error)

	// Verify reports whether password hashes to the stored hash.
	Verify(password, salt, secret, hash string) bool
}

// SHA512Hasher implements PasswordHasher with HashPassword.
type SHA512Hasher struct {
	// Rounds is the number of digest rounds; zero means DefaultHashRounds.
	Rounds int
}

// NewSHA512Hasher creates a hasher using DefaultHashRounds.
func NewSHA512Hasher() *SHA512Hasher {
	return &SHA512Hasher{Rounds: DefaultHashRounds}
}

func (h *SHA512Hasher) rounds() int {
	if h.Rounds == 0 {
		return DefaultHashRounds
	}
	return h.Rounds
}

// Hash produces the hex digest of password.
func (h *SHA512Hasher) Hash(password, salt, secret string) (string, error) {
	return HashPassword(password, salt, h.rounds(), secret)
}

// Verify recomputes the digest and compares it in constant time.
// An unhashable password never verifies.
func (h *SHA512Hasher) Verify(password, salt, secret, hash string) bool {
	computed, err := HashPassword(password, salt, h.rounds(), secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
