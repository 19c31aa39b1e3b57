// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arobito/arobito/internal/auth"
	"github.com/arobito/arobito/internal/config"
	"github.com/arobito/arobito/internal/control"
	"github.com/arobito/arobito/internal/observability"
	"github.com/arobito/arobito/internal/panel"
	"github.com/arobito/arobito/internal/web"
)

const testConfig = `server:
  bind_ip: 127.0.0.1
  shutdown_delay_seconds: 1
metrics:
  addr: ""
control:
  enabled: false
log:
  level: error
`

// readyWebServer reports its address once Start has bound the listener.
type readyWebServer struct {
	WebServer
	ready chan string
}

func (s *readyWebServer) Start() (<-chan error, error) {
	ch, err := s.WebServer.Start()
	if err == nil {
		s.ready <- s.WebServer.Addr()
	}
	return ch, err
}

// mockWebServer implements WebServer for testing.
type mockWebServer struct {
	startErr error
}

func (m *mockWebServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return make(chan error), nil
}

func (m *mockWebServer) Stop(context.Context) error { return nil }
func (m *mockWebServer) Addr() string               { return "127.0.0.1:9812" }

// mockControlServer implements ControlServer for testing.
type mockControlServer struct {
	scheduler *control.Scheduler
	sessions  func() int
	started   bool
	stopped   bool
}

func (m *mockControlServer) Start() error {
	m.started = true
	return nil
}

func (m *mockControlServer) Stop(context.Context) error {
	m.stopped = true
	return nil
}

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	metrics *observability.Metrics
	panel   observability.PanelState
}

func (m *mockObservabilityServer) Start() (<-chan error, error) { return make(chan error), nil }
func (m *mockObservabilityServer) Stop(context.Context) error   { return nil }
func (m *mockObservabilityServer) Addr() string                 { return "127.0.0.1:9813" }
func (m *mockObservabilityServer) Metrics() *observability.Metrics {
	return m.metrics
}
func (m *mockObservabilityServer) Attach(p observability.PanelState) { m.panel = p }

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o600))
	return dir
}

func testDeps(dir string, ready chan string) *ServeDeps {
	return &ServeDeps{
		ConfigDirFinder: func(string) (string, error) { return dir, nil },
		WebServerFactory: func(_ string, handler http.Handler, logger *slog.Logger) WebServer {
			return &readyWebServer{
				WebServer: web.NewServer("127.0.0.1:0", handler, logger),
				ready:     ready,
			}
		},
	}
}

func postJSON(t *testing.T, url string, body any, out any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data)) //nolint:noctx // test
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func startServe(t *testing.T, ctx context.Context, deps *ServeDeps) (<-chan error, *bytes.Buffer) {
	t.Helper()
	cmd := NewServeCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)

	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cmd, deps) }()
	return done, out
}

func TestServe_LoginAndScheduledShutdown(t *testing.T) {
	dir := writeTestConfig(t, testConfig)
	ready := make(chan string, 1)

	done, out := startServe(t, context.Background(), testDeps(dir, ready))

	var base string
	select {
	case addr := <-ready:
		base = "http://" + addr
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("web server did not start")
	}

	var login panel.AuthResponse
	postJSON(t, base+web.PathAuth, map[string]string{"username": "arobito", "password": "arobito"}, &login)
	require.True(t, login.Auth.Success)
	require.Len(t, login.Auth.Key, auth.DefaultKeyLength)

	var count panel.SessionCountResponse
	postJSON(t, base+web.PathSessionCount, map[string]string{"key": login.Auth.Key}, &count)
	assert.Equal(t, 1, count.SessionCount)

	var shutdown panel.ShutdownResponse
	postJSON(t, base+web.PathShutdown, map[string]string{"key": login.Auth.Key}, &shutdown)
	assert.True(t, shutdown.Shutdown)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("scheduled shutdown did not stop the server")
	}
	assert.Contains(t, out.String(), "Control panel listening on")

	// The default administrator was persisted next to the configuration.
	data, err := os.ReadFile(filepath.Join(dir, "users.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "User:arobito")
}

func TestServe_LockedWhenRepositoryFails(t *testing.T) {
	dir := writeTestConfig(t, testConfig)
	ready := make(chan string, 1)
	deps := testDeps(dir, ready)
	deps.RepositoryFactory = func(context.Context, *config.Config, *slog.Logger) (auth.AccountRepository, func(), error) {
		return nil, nil, errors.New("backend down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done, _ := startServe(t, ctx, deps)

	addr := <-ready
	var login panel.AuthResponse
	postJSON(t, "http://"+addr+web.PathAuth, map[string]string{"username": "arobito", "password": "arobito"}, &login)
	assert.False(t, login.Auth.Success)
	assert.Equal(t, panel.ReasonLoginFailed, login.Auth.Reason)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop on context cancellation")
	}
}

func TestServe_WiresControlAndObservability(t *testing.T) {
	dir := writeTestConfig(t, strings.NewReplacer(
		"addr: \"\"", "addr: 127.0.0.1:9813",
		"enabled: false", "enabled: true",
	).Replace(testConfig))

	ctrl := &mockControlServer{}
	obs := &mockObservabilityServer{metrics: observability.NewMetrics(prometheus.NewRegistry())}
	deps := &ServeDeps{
		ConfigDirFinder:  func(string) (string, error) { return dir, nil },
		WebServerFactory: func(string, http.Handler, *slog.Logger) WebServer { return &mockWebServer{} },
		ControlServerFactory: func(scheduler *control.Scheduler, sessions func() int) ControlServer {
			ctrl.scheduler = scheduler
			ctrl.sessions = sessions
			return ctrl
		},
		ObservabilityServerFactory: func(string, *slog.Logger) ObservabilityServer { return obs },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, runServeWithDeps(ctx, NewServeCmd(), deps))

	assert.True(t, ctrl.started)
	assert.True(t, ctrl.stopped)
	require.NotNil(t, ctrl.scheduler)
	assert.Equal(t, time.Second, ctrl.scheduler.Delay())
	assert.Equal(t, 0, ctrl.sessions())
	require.NotNil(t, obs.panel)
	assert.False(t, obs.panel.Locked())
}

func TestServe_LockedWhenConfigUnavailable(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) (string, error)
	}{
		{
			name: "config dir not found",
			dir: func(*testing.T) (string, error) {
				return "", errors.New("no dir")
			},
		},
		{
			name: "config file is a directory",
			dir: func(t *testing.T) (string, error) {
				dir := t.TempDir()
				require.NoError(t, os.Mkdir(filepath.Join(dir, config.FileName), 0o700))
				return dir, nil
			},
		},
		{
			name: "config file violates schema",
			dir: func(t *testing.T) (string, error) {
				return writeTestConfig(t, "server:\n  listen_port: nope\n"), nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, dirErr := tt.dir(t)
			ready := make(chan string, 1)
			obs := &mockObservabilityServer{metrics: observability.NewMetrics(prometheus.NewRegistry())}
			deps := testDeps(dir, ready)
			deps.ConfigDirFinder = func(string) (string, error) { return dir, dirErr }
			deps.ControlServerFactory = func(*control.Scheduler, func() int) ControlServer {
				return &mockControlServer{}
			}
			deps.ObservabilityServerFactory = func(string, *slog.Logger) ObservabilityServer { return obs }
			deps.RepositoryFactory = func(context.Context, *config.Config, *slog.Logger) (auth.AccountRepository, func(), error) {
				t.Error("repository must not be opened without a configuration")
				return nil, nil, errors.New("unexpected")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done, _ := startServe(t, ctx, deps)

			var base string
			select {
			case addr := <-ready:
				base = "http://" + addr
			case err := <-done:
				t.Fatalf("serve exited instead of starting locked: %v", err)
			case <-time.After(10 * time.Second):
				t.Fatal("web server did not start")
			}

			var login panel.AuthResponse
			postJSON(t, base+web.PathAuth, map[string]string{"username": "arobito", "password": "arobito"}, &login)
			assert.False(t, login.Auth.Success)
			assert.Equal(t, panel.ReasonLoginFailed, login.Auth.Reason)

			var count panel.SessionCountResponse
			postJSON(t, base+web.PathSessionCount, map[string]string{"key": "anything"}, &count)
			assert.Equal(t, -1, count.SessionCount)

			require.NotNil(t, obs.panel)
			assert.True(t, obs.panel.Locked())

			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("serve did not stop on context cancellation")
			}
		})
	}
}

func TestServe_Errors(t *testing.T) {
	t.Run("web server start failure", func(t *testing.T) {
		dir := writeTestConfig(t, testConfig)
		deps := &ServeDeps{
			ConfigDirFinder: func(string) (string, error) { return dir, nil },
			WebServerFactory: func(string, http.Handler, *slog.Logger) WebServer {
				return &mockWebServer{startErr: errors.New("address in use")}
			},
		}
		err := runServeWithDeps(context.Background(), NewServeCmd(), deps)
		assert.EqualError(t, err, "address in use")
	})
}

func TestOpenRepository_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials.Backend = "ldap"
	_, _, err := openRepository(context.Background(), &cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestRunJanitor_StopsWithContext(t *testing.T) {
	sessions := auth.NewSessionStore(nil, auth.DefaultSessionPolicy(), auth.WithSessionLogger(slog.New(slog.DiscardHandler)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runJanitor(ctx, sessions, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
