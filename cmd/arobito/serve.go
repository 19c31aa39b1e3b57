// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arobito/arobito/internal/auth"
	"github.com/arobito/arobito/internal/auth/filestore"
	authpg "github.com/arobito/arobito/internal/auth/postgres"
	"github.com/arobito/arobito/internal/config"
	"github.com/arobito/arobito/internal/control"
	"github.com/arobito/arobito/internal/logging"
	"github.com/arobito/arobito/internal/observability"
	"github.com/arobito/arobito/internal/panel"
	"github.com/arobito/arobito/internal/store"
	"github.com/arobito/arobito/internal/web"
	"github.com/arobito/arobito/internal/xdg"
)

const (
	serviceName      = "arobito"
	controlComponent = "panel"
	janitorInterval  = time.Minute
	stopTimeout      = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the control panel",
		Long: `Start the control panel web server. Accounts are loaded from the
configured credential backend. If the configuration or the backend cannot
be loaded the panel still starts but refuses every login.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the panel with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigDirFinder == nil {
		deps.ConfigDirFinder = xdg.FindConfigDir
	}
	if deps.RepositoryFactory == nil {
		deps.RepositoryFactory = openRepository
	}
	if deps.WebServerFactory == nil {
		deps.WebServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) WebServer {
			return web.NewServer(addr, handler, logger)
		}
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(scheduler *control.Scheduler, sessions func() int) ControlServer {
			return control.NewServer(controlComponent, scheduler, control.WithSessionCounter(sessions))
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, observability.WithServerLogger(logger))
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, dir, cfgErr := loadServeConfig(deps, cmd.Flags())
	logOpts, err := cfg.LogOptions()
	if err != nil {
		return err
	}
	logger := logging.SetDefault(serviceName, version, logOpts)
	if cfgErr != nil {
		logging.LogError(ctx, logger, "cannot load configuration, panel is locked", cfgErr,
			"config_dir", dir,
		)
	}

	logger.Info("starting control panel",
		"config_dir", dir,
		"listen_addr", cfg.ListenAddr(),
		"credentials_backend", cfg.Credentials.Backend,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduler := control.NewScheduler(cfg.ShutdownDelay(), func() { cancel() }, control.WithSchedulerLogger(logger))
	defer scheduler.Stop()

	var obsServer ObservabilityServer
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, logger)
		metrics = obsServer.Metrics()
	}

	var sessions *auth.SessionStore
	if cfgErr == nil {
		var closeRepo func()
		sessions, closeRepo = openSessions(ctx, cfg, deps, logger, metrics)
		defer closeRepo()
	}

	var manager panel.SessionManager
	if sessions != nil {
		manager = sessions
		go runJanitor(ctx, sessions, janitorInterval)
	}
	facade := panel.New(manager, scheduler,
		panel.WithRecorder(metrics),
		panel.WithLogger(logger),
	)
	if obsServer != nil {
		obsServer.Attach(facade)
	}

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), stopTimeout)
	}

	webServer := deps.WebServerFactory(cfg.ListenAddr(),
		web.NewHandler(facade, web.WithRecorder(metrics), web.WithLogger(logger)),
		logger,
	)
	webErrCh, err := webServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web")
	defer func() {
		stopCtx, stopCancel := shutdownCtx()
		defer stopCancel()
		if err := webServer.Stop(stopCtx); err != nil {
			logger.Warn("error stopping web server", "error", err)
		}
	}()

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		defer func() {
			stopCtx, stopCancel := shutdownCtx()
			defer stopCancel()
			if err := obsServer.Stop(stopCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	if cfg.Control.Enabled {
		count := func() int { return 0 }
		if sessions != nil {
			count = sessions.Count
		}
		controlServer := deps.ControlServerFactory(scheduler, count)
		if err := controlServer.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := shutdownCtx()
			defer stopCancel()
			if err := controlServer.Stop(stopCtx); err != nil {
				logger.Warn("error stopping control server", "error", err)
			}
		}()
	}

	cmd.Println("Control panel listening on " + webServer.Addr())
	logger.Info("control panel ready",
		"addr", webServer.Addr(),
		"locked", facade.Locked(),
	)

	<-ctx.Done()
	logger.Info("shutting down...")
	return nil
}

// loadServeConfig locates and loads the configuration. On failure it
// returns the defaults together with the error so the panel can start
// locked.
func loadServeConfig(deps *ServeDeps, flags *pflag.FlagSet) (*config.Config, string, error) {
	fallback := config.Default()
	dir, err := deps.ConfigDirFinder(configDir)
	if err != nil {
		return &fallback, "", err
	}
	cfg, err := config.Load(dir, flags)
	if err != nil {
		return &fallback, dir, err
	}
	return cfg, dir, nil
}

// openSessions builds the session store on top of the configured
// repository. Failures are logged and yield a nil store, which locks the
// panel.
func openSessions(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger, observer auth.SessionObserver) (*auth.SessionStore, func()) {
	repo, closeRepo, err := deps.RepositoryFactory(ctx, cfg, logger)
	if err != nil {
		logging.LogError(ctx, logger, "credential backend unavailable, panel is locked", err)
		return nil, func() {}
	}

	creds, err := auth.NewCredentialStore(ctx, repo, auth.WithLogger(logger))
	if err != nil {
		logging.LogError(ctx, logger, "cannot load credentials, panel is locked", err)
		return nil, closeRepo
	}

	return auth.NewSessionStore(creds, cfg.SessionPolicy(),
		auth.WithSessionLogger(logger),
		auth.WithSessionObserver(observer),
	), closeRepo
}

// openRepository opens the account repository selected by
// credentials.backend.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.AccountRepository, func(), error) {
	switch cfg.Credentials.Backend {
	case config.BackendFile:
		return filestore.New(cfg.Credentials.File), func() {}, nil
	case config.BackendPostgres:
		pool, err := store.Connect(ctx, cfg.Credentials.DatabaseURL, store.WithConnectLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return authpg.NewAccountRepository(pool), pool.Close, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("key", "credentials.backend").
			Errorf("unknown credential backend %q", cfg.Credentials.Backend)
	}
}

// runJanitor expires stale sessions periodically so the active session
// gauge stays accurate while the panel is idle.
func runJanitor(ctx context.Context, sessions *auth.SessionStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Cleanup()
		}
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
