// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth

import (
	"regexp"
	"time"

	"github.com/samber/oops"
)

// LevelAdministrator is the privilege level allowed to run administrative
// operations. Any other level is an opaque tag.
const LevelAdministrator = "Administrator"

// Username validation constraints.
const MaxUsernameLength = 64

// usernameRegex matches 1 to 64 ASCII letters or digits.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]{1,64}$`)

// Account is one login identity as persisted by an AccountRepository.
type Account struct {
	Username     string
	Level        string
	Salt         string
	PasswordHash string

	// Enabled is nil when the backing store carries no enabled flag.
	Enabled *bool
}

// IsComplete reports whether the account carries both a level and an
// enabled flag. Incomplete accounts never authenticate.
func (a *Account) IsComplete() bool {
	return a.Level != "" && a.Enabled != nil
}

// IsEnabled reports whether the account is explicitly enabled.
func (a *Account) IsEnabled() bool {
	return a.Enabled != nil && *a.Enabled
}

// Bool returns a pointer to v, for populating Account.Enabled.
func Bool(v bool) *bool {
	return &v
}

// ValidateUsername checks a username against the identifier pattern.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username must contain only letters and digits")
	}
	return nil
}

// Principal is the authenticated identity attached to a session.
type Principal struct {
	Username     string    `json:"username"`
	Level        string    `json:"level"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// IsAdministrator reports whether the principal holds the Administrator level.
func (p *Principal) IsAdministrator() bool {
	return p != nil && p.Level == LevelAdministrator
}
