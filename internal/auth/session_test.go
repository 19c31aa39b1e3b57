// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package auth_test

import (
	"bytes"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arobito/arobito/internal/auth"
	"github.com/arobito/arobito/internal/auth/authtest"
)

var sessionKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9]{64}$`)

type recordingObserver struct {
	mu      sync.Mutex
	created int
	removed map[string]int
}

func (o *recordingObserver) SessionCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func (o *recordingObserver) SessionRemoved(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.removed == nil {
		o.removed = make(map[string]int)
	}
	o.removed[reason]++
}

func newTestSessionStore(t *testing.T, policy auth.SessionPolicy, opts ...auth.SessionOption) (*auth.SessionStore, *authtest.Clock) {
	t.Helper()
	clock := authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	verifier := authtest.StaticVerifier{
		Username: "arobito",
		Password: "arobito",
		Level:    auth.LevelAdministrator,
		Now:      clock.Now,
	}
	opts = append([]auth.SessionOption{auth.WithSessionClock(clock.Now)}, opts...)
	return auth.NewSessionStore(verifier, policy, opts...), clock
}

func TestNewSessionStore_PolicyDefaults(t *testing.T) {
	tests := []struct {
		name   string
		policy auth.SessionPolicy
		want   auth.SessionPolicy
	}{
		{name: "zero policy", policy: auth.SessionPolicy{}, want: auth.DefaultSessionPolicy()},
		{
			name:   "negative values",
			policy: auth.SessionPolicy{MaxAge: -time.Second, MaxInactivity: -time.Second},
			want:   auth.DefaultSessionPolicy(),
		},
		{
			name:   "explicit values kept",
			policy: auth.SessionPolicy{MaxAge: time.Minute, MaxInactivity: time.Second},
			want:   auth.SessionPolicy{MaxAge: time.Minute, MaxInactivity: time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := auth.NewSessionStore(authtest.StaticVerifier{}, tt.policy)
			assert.Equal(t, tt.want, store.Policy())
		})
	}
}

func TestSessionStore_Lifecycle(t *testing.T) {
	store, clock := newTestSessionStore(t, auth.DefaultSessionPolicy())

	key, ok := store.Login("arobito", "arobito")
	require.True(t, ok)
	assert.Regexp(t, sessionKeyPattern, key)
	assert.Equal(t, 1, store.Count())

	first, ok := store.GetUser(key)
	require.True(t, ok)
	assert.Equal(t, "arobito", first.Username)
	assert.Equal(t, auth.LevelAdministrator, first.Level)
	assert.Equal(t, first.CreatedAt, first.LastAccessAt)

	clock.Advance(time.Minute)
	second, ok := store.GetUser(key)
	require.True(t, ok)
	assert.True(t, second.LastAccessAt.After(first.LastAccessAt))
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	store.Logout(key)
	assert.Equal(t, 0, store.Count())
	_, ok = store.GetUser(key)
	assert.False(t, ok)
}

func TestSessionStore_GetUserReturnsSnapshot(t *testing.T) {
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy())
	key, ok := store.Login("arobito", "arobito")
	require.True(t, ok)

	p, ok := store.GetUser(key)
	require.True(t, ok)
	p.Level = "Tampered"

	again, ok := store.GetUser(key)
	require.True(t, ok)
	assert.Equal(t, auth.LevelAdministrator, again.Level)
}

func TestSessionStore_LoginFailures(t *testing.T) {
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy())

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "wrong password", username: "arobito", password: "nope"},
		{name: "unknown user", username: "someone", password: "arobito"},
		{name: "empty username", username: "", password: "arobito"},
		{name: "empty password", username: "arobito", password: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := store.Login(tt.username, tt.password)
			assert.False(t, ok)
			assert.Empty(t, key)
		})
	}
	assert.Equal(t, 0, store.Count())
}

func TestSessionStore_UnknownKeys(t *testing.T) {
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy())
	key, ok := store.Login("arobito", "arobito")
	require.True(t, ok)

	for _, k := range []string{"", "not-a-key", key[:63]} {
		_, ok := store.GetUser(k)
		assert.False(t, ok, "key %q", k)
		store.Logout(k)
	}
	assert.Equal(t, 1, store.Count())

	store.Logout(key)
	store.Logout(key)
	assert.Equal(t, 0, store.Count())
}

func TestSessionStore_DistinctKeysPerLogin(t *testing.T) {
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy())

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		key, ok := store.Login("arobito", "arobito")
		require.True(t, ok)
		_, dup := seen[key]
		require.False(t, dup)
		seen[key] = struct{}{}
	}
	assert.Equal(t, 50, store.Count())
}

func TestSessionStore_Capacity(t *testing.T) {
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy())

	const n = 100
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, ok := store.Login("arobito", "arobito")
		require.True(t, ok)
		keys = append(keys, key)
		assert.Equal(t, i+1, store.Count())
	}

	rng := rand.New(rand.NewPCG(1, 2))
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	for i, key := range keys {
		store.Logout(key)
		assert.Equal(t, n-i-1, store.Count())
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	policy := auth.SessionPolicy{MaxAge: 10 * time.Minute, MaxInactivity: 3 * time.Minute}

	t.Run("inactivity", func(t *testing.T) {
		observer := &recordingObserver{}
		store, clock := newTestSessionStore(t, policy, auth.WithSessionObserver(observer))
		key, ok := store.Login("arobito", "arobito")
		require.True(t, ok)

		clock.Advance(3 * time.Minute)
		_, ok = store.GetUser(key)
		assert.True(t, ok, "exactly at the threshold the session is still live")

		clock.Advance(3*time.Minute + time.Second)
		_, ok = store.GetUser(key)
		assert.False(t, ok)
		assert.Equal(t, 0, store.Count())
		assert.Equal(t, 1, observer.removed[auth.RemovedInactivity])
	})

	t.Run("access keeps session alive", func(t *testing.T) {
		store, clock := newTestSessionStore(t, policy)
		key, ok := store.Login("arobito", "arobito")
		require.True(t, ok)

		for i := 0; i < 3; i++ {
			clock.Advance(2 * time.Minute)
			_, ok = store.GetUser(key)
			require.True(t, ok)
		}
	})

	t.Run("max age", func(t *testing.T) {
		observer := &recordingObserver{}
		store, clock := newTestSessionStore(t, policy, auth.WithSessionObserver(observer))
		key, ok := store.Login("arobito", "arobito")
		require.True(t, ok)

		for i := 0; i < 5; i++ {
			clock.Advance(2 * time.Minute)
			_, ok = store.GetUser(key)
			require.True(t, ok)
		}
		clock.Advance(time.Second)
		_, ok = store.GetUser(key)
		assert.False(t, ok)
		assert.Equal(t, 1, observer.removed[auth.RemovedMaxAge])
	})

	t.Run("cleanup removes only stale sessions", func(t *testing.T) {
		store, clock := newTestSessionStore(t, policy)
		stale, ok := store.Login("arobito", "arobito")
		require.True(t, ok)
		clock.Advance(2 * time.Minute)
		fresh, ok := store.Login("arobito", "arobito")
		require.True(t, ok)

		clock.Advance(2 * time.Minute)
		assert.Equal(t, 1, store.Cleanup())

		_, ok = store.GetUser(stale)
		assert.False(t, ok)
		_, ok = store.GetUser(fresh)
		assert.True(t, ok)
	})

	t.Run("count triggers cleanup", func(t *testing.T) {
		store, clock := newTestSessionStore(t, policy)
		_, ok := store.Login("arobito", "arobito")
		require.True(t, ok)
		clock.Advance(time.Hour)
		assert.Equal(t, 0, store.Count())
	})
}

func TestSessionStore_Observer(t *testing.T) {
	observer := &recordingObserver{}
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy(), auth.WithSessionObserver(observer))

	a, _ := store.Login("arobito", "arobito")
	_, _ = store.Login("arobito", "arobito")
	_, _ = store.Login("arobito", "wrong")
	store.Logout(a)
	store.Logout(a)

	assert.Equal(t, 2, observer.created)
	assert.Equal(t, map[string]int{auth.RemovedLogout: 1}, observer.removed)
}

func TestSessionStore_LogsNeverContainKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy(), auth.WithSessionLogger(logger))

	key, ok := store.Login("arobito", "arobito")
	require.True(t, ok)
	store.Logout(key)

	assert.Contains(t, buf.String(), "session created")
	assert.Contains(t, buf.String(), "session removed")
	assert.NotContains(t, buf.String(), key)
}

func TestSessionStore_WithKeyLength(t *testing.T) {
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy(), auth.WithKeyLength(96))
	key, ok := store.Login("arobito", "arobito")
	require.True(t, ok)
	assert.Len(t, key, 96)

	short, _ := newTestSessionStore(t, auth.DefaultSessionPolicy(), auth.WithKeyLength(8))
	key, ok = short.Login("arobito", "arobito")
	require.True(t, ok)
	assert.Len(t, key, auth.DefaultKeyLength)
}

func TestSessionStore_Concurrent(t *testing.T) {
	store, _ := newTestSessionStore(t, auth.DefaultSessionPolicy())

	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key, ok := store.Login("arobito", "arobito")
				if !ok {
					t.Error("login failed")
					return
				}
				if _, ok := store.GetUser(key); !ok {
					t.Error("session lookup failed")
				}
				_ = store.Count()
				store.Logout(key)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, store.Count())
}
