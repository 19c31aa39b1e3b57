// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth

import (
	"crypto/rand"
	"strings"

	"github.com/samber/oops"
)

// Random material lengths.
const (
	DefaultSaltLength = 128
	DefaultKeyLength  = 64
)

const (
	letters     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits      = "0123456789"
	punctuation = "!\"#$&'()*+,-./:;<=>?@[\\]^_`{|}~" // '%' deliberately absent
)

// saltAlphabet is letters, digits and punctuation without the percent sign.
var saltAlphabet = letters + digits + punctuation

// keyAlphabet is the alphanumeric alphabet used for session keys.
const keyAlphabet = letters + digits

// CreateSalt returns a random string of length characters drawn from letters,
// digits and punctuation, never containing '%'. It is used for per-account
// salts and for the realm secret.
func CreateSalt(length int) (string, error) {
	return randomString(saltAlphabet, length)
}

// CreateSimpleKey returns a random alphanumeric string of length characters,
// suitable as a session key.
func CreateSimpleKey(length int) (string, error) {
	return randomString(keyAlphabet, length)
}

// randomString draws length characters uniformly from alphabet using
// crypto/rand. Bytes that would bias the distribution are rejected.
func randomString(alphabet string, length int) (string, error) {
	if length < 0 {
		return "", oops.Code("AUTH_RANDOM_INVALID_LENGTH").
			With("length", length).
			Errorf("random string length cannot be negative")
	}
	n := len(alphabet)
	limit := 256 - 256%n

	var b strings.Builder
	b.Grow(length)
	buf := make([]byte, length+length/2+8)
	for b.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("AUTH_RANDOM_FAILED").
				With("operation", "crypto/rand.Read").
				With("requested_bytes", len(buf)).
				Wrap(err)
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			b.WriteByte(alphabet[int(c)%n])
			if b.Len() == length {
				break
			}
		}
	}
	return b.String(), nil
}
