// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package auth provides the credential and session core of the control panel.
//
// # Credentials
//
// A CredentialStore is built once per process from an AccountRepository.
// Construction bootstraps the realm secret and a default administrator when
// the repository is empty; afterwards the accounts are read-only and Verify
// can be called concurrently without locking.
//
// # Sessions
//
// A SessionStore maps opaque session keys to Principals. Every operation runs
// an expiry sweep first, and the whole store is guarded by one mutex, so a
// lookup can never observe a session that the sweep is about to remove.
//
// Both stores are constructed explicitly by the application and passed to
// the panel; there is no package-level state.
package auth
