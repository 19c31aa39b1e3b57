// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package control provides process management for the panel: the delayed
// shutdown scheduler and an HTTP control socket for local operators.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/arobito/arobito/internal/xdg"
)

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is returned by the /status endpoint.
type StatusResponse struct {
	Running         bool   `json:"running"`
	PID             int    `json:"pid"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Component       string `json:"component,omitempty"`
	ActiveSessions  int    `json:"active_sessions"`
	ShutdownPending bool   `json:"shutdown_pending"`
}

// ShutdownResponse is returned by the /shutdown endpoint.
type ShutdownResponse struct {
	Message   string `json:"message"`
	Scheduled bool   `json:"scheduled"`
}

// Server runs HTTP over a Unix socket for process management.
type Server struct {
	component  string
	startTime  time.Time
	listener   net.Listener
	httpServer *http.Server
	socketPath string
	scheduler  *Scheduler
	sessions   func() int
	running    atomic.Bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSessionCounter reports active sessions in /status.
func WithSessionCounter(count func() int) ServerOption {
	return func(s *Server) { s.sessions = count }
}

// WithSocketPath overrides the socket location derived from the runtime dir.
func WithSocketPath(path string) ServerOption {
	return func(s *Server) { s.socketPath = path }
}

// NewServer creates a new control socket server.
// component names the process in the socket file name.
// Shutdown requests go through scheduler, which may be nil.
func NewServer(component string, scheduler *Scheduler, opts ...ServerOption) *Server {
	s := &Server{
		component: component,
		startTime: time.Now(),
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.running.Store(true)
	return s
}

// SocketPath returns the path to the Unix socket.
func SocketPath(component string) (string, error) {
	runtimeDir, err := xdg.RuntimeDir()
	if err != nil {
		return "", oops.Code("CONTROL_SOCKET_PATH_FAILED").Wrap(err)
	}
	return filepath.Join(runtimeDir, fmt.Sprintf("arobito-%s.sock", component)), nil
}

// Start begins listening on the Unix socket.
func (s *Server) Start() error {
	if s.socketPath == "" {
		socketPath, err := SocketPath(s.component)
		if err != nil {
			return err
		}
		s.socketPath = socketPath
	}

	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		return err
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return oops.Code("CONTROL_SOCKET_FAILED").
			With("operation", "remove stale socket").
			With("path", s.socketPath).
			Wrap(err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return oops.Code("CONTROL_SOCKET_FAILED").
			With("operation", "listen").
			With("path", s.socketPath).
			Wrap(err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return oops.Code("CONTROL_SOCKET_FAILED").
			With("operation", "chmod").
			With("path", s.socketPath).
			Wrap(err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control socket server error",
				"component", s.component,
				"error", err,
			)
		}
	}()

	return nil
}

// Handler returns the control routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Addr returns the socket path once Start has run.
func (s *Server) Addr() string {
	return s.socketPath
}

// Stop gracefully shuts down the control socket server.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.Code("CONTROL_SHUTDOWN_FAILED").Wrap(err)
		}
	}

	// Serve closes the listener on Shutdown; this covers Start failures.
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close control socket listener",
				"component", s.component,
				"error", err,
			)
		}
	}

	if s.socketPath != "" && s.listener != nil {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove control socket file",
				"component", s.component,
				"path", s.socketPath,
				"error", err,
			)
		}
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		slog.Error("failed to write health response",
			"component", s.component,
			"error", err,
		)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Component:     s.component,
	}
	if s.sessions != nil {
		resp.ActiveSessions = s.sessions()
	}
	if s.scheduler != nil {
		resp.ShutdownPending = s.scheduler.Pending()
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		slog.Error("failed to write status response",
			"component", s.component,
			"error", err,
		)
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	resp := ShutdownResponse{Message: "shutdown unavailable"}
	status := http.StatusServiceUnavailable
	if s.scheduler != nil {
		status = http.StatusAccepted
		if s.scheduler.Schedule() {
			resp = ShutdownResponse{
				Message:   fmt.Sprintf("shutdown in %s", s.scheduler.Delay()),
				Scheduled: true,
			}
		} else {
			resp.Message = "shutdown already pending"
		}
	}
	if err := writeJSON(w, status, resp); err != nil {
		slog.Error("failed to write shutdown response",
			"component", s.component,
			"error", err,
		)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return oops.Code("CONTROL_ENCODE_FAILED").Wrap(err)
	}
	return nil
}
