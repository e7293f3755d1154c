// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/memory"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/httpapi"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/observability"
)

const (
	serviceName       = "authgate"
	shutdownTimeout   = 5 * time.Second
	readinessTimeout  = 2 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// serveConfig holds flags local to the serve command.
type serveConfig struct {
	skipMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	local := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the login API",
		Long: `Start the HTTP login API and the metrics/health listener.
Without a database URL accounts live in memory and are lost on exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, local, cmd, nil)
		},
	}

	cmd.Flags().BoolVar(&local.skipMigrate, "skip-migrate", false, "do not apply pending migrations at startup")

	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled or a listener
// fails. main cancels ctx on SIGINT and SIGTERM. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, local *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log_level").Wrap(err)
	}
	logger := logging.Setup(serviceName, version, cfg.LogFormat, level, deps.LogWriter)

	lifetime, err := cfg.TokenLifetime()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), lifetime)
	if err != nil {
		return err
	}

	accounts, err := openAccounts(ctx, cfg, local, deps, logger)
	if err != nil {
		return err
	}
	defer accounts.close()

	var (
		obsServer ObservabilityServer
		obsErrs   <-chan error
		metrics   *observability.Metrics
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, accounts.ready, logger)
		obsErrs, err = obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		defer stopObservability(logger, obsServer)
		metrics = obsServer.Metrics()
		logger.InfoContext(ctx, "observability server started", "addr", obsServer.Addr())
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	svc, err := auth.NewService(accounts.repo, auth.NewArgon2idHasher(), tokens, cfg.LockoutPolicy(),
		auth.WithLogger(logger),
		auth.WithRecorder(metrics),
	)
	if err != nil {
		return err
	}

	limiter := httpapi.NewClientLimiter(httpapi.ClientLimiterConfig{
		Rate:  cfg.RateLimitRPS,
		Burst: cfg.RateLimitBurst,
	})
	defer limiter.Close()

	router, err := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:  httpapi.NewHandler(svc, logger),
		Tokens:   tokens,
		Limiter:  limiter,
		Recorder: metrics,
		Logger:   logger,
	})
	if err != nil {
		return oops.Code("ROUTER_INIT_FAILED").Wrap(err)
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTPAddr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	apiErrs := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrs <- serveErr
		}
		close(apiErrs)
	}()

	if cmd != nil {
		cmd.Println("Authgate started")
	}
	logger.InfoContext(ctx, "login API ready",
		"addr", listener.Addr().String(),
		"lockout_threshold", cfg.MaxLoginAttempts,
		"lock_minutes", cfg.LockMinutes,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "shutdown requested")
	case serveErr, ok := <-apiErrs:
		if ok {
			runErr = oops.Code("SERVE_FAILED").With("server", "api").Wrap(serveErr)
		}
	case obsErr, ok := <-obsErrs:
		if ok {
			runErr = oops.Code("SERVE_FAILED").With("server", "observability").Wrap(obsErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}
	logger.Info("API server stopped")
	return runErr
}

// openAccounts picks the PostgreSQL store, migrating it first unless told
// not to, or falls back to memory when no database URL is configured.
func openAccounts(ctx context.Context, cfg *config.Config, local *serveConfig, deps *ServeDeps, logger *slog.Logger) (*openedStore, error) {
	if cfg.DatabaseURL == "" {
		logger.WarnContext(ctx, "no database configured, accounts are kept in memory")
		return &openedStore{repo: memory.NewAccountStore(), close: func() {}}, nil
	}

	if local == nil || !local.skipMigrate {
		if err := autoMigrate(deps, cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}

	opened, err := deps.StoreOpener(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if opened.close == nil {
		opened.close = func() {}
	}
	return opened, nil
}

func autoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}
	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("schema up to date", "version", version)
	return nil
}

func stopObservability(logger *slog.Logger, server ObservabilityServer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}
