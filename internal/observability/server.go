// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package observability exposes the panel's Prometheus metrics and health
// probes on a separate listener.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Probe paths.
const (
	PathMetrics   = "/metrics"
	PathLiveness  = "/healthz/liveness"
	PathReadiness = "/healthz/readiness"
)

// Probe statuses reported in ProbeResponse.
const (
	StatusAlive    = "alive"
	StatusReady    = "ready"
	StatusLocked   = "locked"
	StatusStarting = "starting"
)

// PanelState is the view of the control panel the readiness probe needs.
// *panel.Panel satisfies it.
type PanelState interface {
	Locked() bool
}

// ProbeResponse is the JSON body of the health probes.
type ProbeResponse struct {
	Status string `json:"status"`
}

// Server serves /metrics and the health probes for one panel.
//
// Readiness follows the attached panel: 503 "starting" until Attach is
// called, 503 "locked" while the panel refuses logins, 200 "ready" otherwise.
// The arobito_panel_locked gauge tracks the same state.
type Server struct {
	addr       string
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	panel      atomic.Pointer[PanelState]
	running    atomic.Bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server listening on addr ("host:port") with a fresh
// registry holding the Go and process collectors and the panel metrics.
func NewServer(addr string, opts ...ServerOption) *Server {
	s := &Server{
		addr:     addr,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "arobito_panel_locked",
			Help: "1 while the panel refuses every login, 0 once it accepts logins",
		}, s.lockedValue),
	)
	s.metrics = NewMetrics(s.registry)
	return s
}

// Metrics returns the panel metrics registered on this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Attach sets the panel whose state the readiness probe reports. A nil
// panel detaches it.
func (s *Server) Attach(p PanelState) {
	if p == nil {
		s.panel.Store(nil)
		return
	}
	s.panel.Store(&p)
}

func (s *Server) status() string {
	p := s.panel.Load()
	switch {
	case p == nil:
		return StatusStarting
	case (*p).Locked():
		return StatusLocked
	default:
		return StatusReady
	}
}

func (s *Server) lockedValue() float64 {
	if s.status() == StatusReady {
		return 0
	}
	return 1
}

// Start binds the listener and serves in the background. The returned
// channel receives a serve error, if any, and is closed when serving ends.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("GET "+PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET "+PathLiveness, s.handleLiveness)
	mux.HandleFunc("GET "+PathReadiness, s.handleReadiness)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func(srv *http.Server) {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}(s.httpServer)

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	s.writeProbe(w, http.StatusOK, StatusAlive)
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	status := s.status()
	code := http.StatusServiceUnavailable
	if status == StatusReady {
		code = http.StatusOK
	}
	s.writeProbe(w, code, status)
}

func (s *Server) writeProbe(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ProbeResponse{Status: status}); err != nil {
		s.logger.Debug("probe write failed", "error", err)
	}
}
