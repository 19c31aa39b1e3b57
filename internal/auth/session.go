// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Default session expiry thresholds.
const (
	DefaultSessionMaxAge        = 24 * time.Hour
	DefaultSessionMaxInactivity = time.Hour
)

// Reasons passed to SessionObserver.SessionRemoved.
const (
	RemovedLogout     = "logout"
	RemovedMaxAge     = "max_age"
	RemovedInactivity = "inactivity"
)

// SessionPolicy holds the expiry thresholds of a SessionStore.
type SessionPolicy struct {
	// MaxAge is the longest a session may live since login.
	MaxAge time.Duration
	// MaxInactivity is the longest a session may go without a lookup.
	MaxInactivity time.Duration
}

// DefaultSessionPolicy returns a policy of 24 hours age and 1 hour inactivity.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		MaxAge:        DefaultSessionMaxAge,
		MaxInactivity: DefaultSessionMaxInactivity,
	}
}

// Session is one live login.
type Session struct {
	// ID identifies the session in logs and metrics. The key is never logged.
	ID        ulid.ULID
	Key       string
	Principal Principal
}

// SessionObserver receives session lifecycle notifications. Calls are made
// while the store lock is held and must not call back into the store.
type SessionObserver interface {
	SessionCreated()
	SessionRemoved(reason string)
}

// SessionStore keeps live sessions in memory for the lifetime of the process.
// All methods are safe for concurrent use.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	credentials Verifier
	policy      SessionPolicy
	keyLength   int
	now         func() time.Time
	logger      *slog.Logger
	observer    SessionObserver
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionClock sets the time source used for expiry decisions.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeyLength sets the session key length. Values below DefaultKeyLength
// are ignored.
func WithKeyLength(n int) SessionOption {
	return func(s *SessionStore) {
		if n >= DefaultKeyLength {
			s.keyLength = n
		}
	}
}

// WithSessionObserver registers a lifecycle observer.
func WithSessionObserver(o SessionObserver) SessionOption {
	return func(s *SessionStore) {
		s.observer = o
	}
}

// NewSessionStore creates an empty store that authenticates logins with
// credentials and expires sessions according to policy. Non-positive policy
// values fall back to the defaults.
func NewSessionStore(credentials Verifier, policy SessionPolicy, opts ...SessionOption) *SessionStore {
	if policy.MaxAge <= 0 {
		policy.MaxAge = DefaultSessionMaxAge
	}
	if policy.MaxInactivity <= 0 {
		policy.MaxInactivity = DefaultSessionMaxInactivity
	}
	s := &SessionStore{
		sessions:    make(map[string]*Session),
		credentials: credentials,
		policy:      policy,
		keyLength:   DefaultKeyLength,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the expiry thresholds in effect.
func (s *SessionStore) Policy() SessionPolicy {
	return s.policy
}

// Login verifies the credentials and, on success, returns the key of a new
// session. It returns ("", false) when verification fails.
func (s *SessionStore) Login(username, password string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked()

	principal, ok := s.credentials.Verify(username, password)
	if !ok {
		return "", false
	}

	key, err := s.newKeyLocked()
	if err != nil {
		s.logger.Error("failed to generate session key", "error", err)
		return "", false
	}

	session := &Session{
		ID:        ulid.Make(),
		Key:       key,
		Principal: *principal,
	}
	s.sessions[key] = session
	if s.observer != nil {
		s.observer.SessionCreated()
	}

	s.logger.Info("session created",
		"session_id", session.ID.String(),
		"username", principal.Username,
		"level", principal.Level,
	)
	return key, true
}

// newKeyLocked draws keys until one does not collide with a live session.
func (s *SessionStore) newKeyLocked() (string, error) {
	for {
		key, err := CreateSimpleKey(s.keyLength)
		if err != nil {
			return "", err
		}
		if _, taken := s.sessions[key]; !taken {
			return key, nil
		}
	}
}

// Logout removes the session with key. Unknown or empty keys are ignored.
func (s *SessionStore) Logout(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key, RemovedLogout)
}

// Cleanup removes every session older than MaxAge or idle for longer than
// MaxInactivity, and returns how many were removed.
func (s *SessionStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cleanupLocked()
}

func (s *SessionStore) cleanupLocked() int {
	now := s.now()
	removed := 0
	for key, session := range s.sessions {
		age := now.Sub(session.Principal.CreatedAt)
		inactivity := now.Sub(session.Principal.LastAccessAt)
		switch {
		case age > s.policy.MaxAge:
			s.removeLocked(key, RemovedMaxAge)
			removed++
		case inactivity > s.policy.MaxInactivity:
			s.removeLocked(key, RemovedInactivity)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) removeLocked(key, reason string) {
	session, ok := s.sessions[key]
	if !ok {
		return
	}
	delete(s.sessions, key)
	if s.observer != nil {
		s.observer.SessionRemoved(reason)
	}
	s.logger.Info("session removed",
		"session_id", session.ID.String(),
		"username", session.Principal.Username,
		"reason", reason,
	)
}

// GetUser returns a snapshot of the Principal for key and marks the session
// as accessed. It returns (nil, false) for empty, unknown or expired keys.
func (s *SessionStore) GetUser(key string) (*Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked()

	if key == "" {
		return nil, false
	}
	session, ok := s.sessions[key]
	if !ok {
		return nil, false
	}

	if now := s.now(); now.After(session.Principal.LastAccessAt) {
		session.Principal.LastAccessAt = now
	}
	principal := session.Principal
	return &principal, true
}

// Count returns the number of live sessions after expiring stale ones.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked()
	return len(s.sessions)
}
