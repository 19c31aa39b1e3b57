// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/arobito/arobito/internal/auth"
	"github.com/arobito/arobito/internal/config"
	"github.com/arobito/arobito/internal/control"
	"github.com/arobito/arobito/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigDirFinder resolves the configuration directory.
	// Default: xdg.FindConfigDir
	ConfigDirFinder func(override string) (string, error)

	// RepositoryFactory opens the account repository selected by cfg. The
	// returned func releases it.
	// Default: openRepository
	RepositoryFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.AccountRepository, func(), error)

	// WebServerFactory creates the panel HTTP server.
	// Default: web.NewServer
	WebServerFactory func(addr string, handler http.Handler, logger *slog.Logger) WebServer

	// ControlServerFactory creates the control socket server.
	// Default: control.NewServer
	ControlServerFactory func(scheduler *control.Scheduler, sessions func() int) ControlServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, logger *slog.Logger) ObservabilityServer
}

// WebServer interface wraps the methods used from web.Server.
type WebServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ControlServer interface wraps the methods used from control.Server.
type ControlServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Attach(panel observability.PanelState)
}
