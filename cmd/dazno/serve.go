// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/config"
	"github.com/dazno/dazno-umbrel/internal/gate"
	"github.com/dazno/dazno-umbrel/internal/ratelimit"
	"github.com/dazno/dazno-umbrel/internal/token"
	"github.com/dazno/dazno-umbrel/internal/web"
)

const readHeaderTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard HTTP server",
		Long: `Start the dashboard. Pending migrations are applied and the admin
account is created on first start unless --auto-migrate=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, autoMigrate, cmd, nil)
		},
	}

	cmd.Flags().String("addr", config.DefaultAddr, "dashboard listen address")
	cmd.Flags().Bool("trust-proxy-headers", false, "take the client address from X-Forwarded-For / X-Real-IP")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("session-profile", auth.DevelopmentProfile.Name, "session cookie profile (development or production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "apply pending migrations before serving")

	return cmd
}

// runServeWithDeps starts the dashboard with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, autoMigrate bool, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	secret, err := cfg.Auth.ResolveSecret()
	if err != nil {
		return err
	}
	if secret.IsFallback() {
		if cfg.IsProduction() {
			return oops.Code("CONFIG_INSECURE_SECRET").
				Errorf("AUTH_SECRET_KEY or AUTH_SECRET_KEY_FILE must be set in production")
		}
		slog.Warn("using the built-in development token secret; set AUTH_SECRET_KEY before exposing the dashboard")
	}
	profile, err := cfg.SessionProfile()
	if err != nil {
		return err
	}

	if autoMigrate {
		if err := deps.Migrate(cfg.Database.URL); err != nil {
			return oops.With("operation", "apply migrations").Wrap(err)
		}
		slog.Info("database schema up to date")
	}

	st, err := deps.StoreFactory(ctx, cfg.Database.URL)
	if err != nil {
		return oops.With("operation", "open store").Wrap(err)
	}
	defer st.Close()

	authSvc, err := auth.NewService(st.Users(), deps.Hasher,
		auth.WithTimingEqualization(cfg.Auth.EqualizeLoginTiming),
		auth.WithShowDefaultPassword(cfg.Auth.ShowDefaultPassword))
	if err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, authSvc, cfg.Auth.ShowDefaultPassword, cmd.OutOrStdout()); err != nil {
		return err
	}

	sessions, err := auth.NewSessionManager(st.Users(), st.Sessions(), profile)
	if err != nil {
		return err
	}
	codec, err := token.NewCodec([]byte(secret.Key), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, st.Ping)
	gate.RegisterMetrics(obsServer.Registry())
	limiters, err := ratelimit.NewSet(cfg.RateLimits(), obsServer.Registry())
	if err != nil {
		return err
	}
	defer limiters.Close()

	accessGate, err := gate.New(sessions, codec, gate.WithSessionProfile(profile))
	if err != nil {
		return err
	}
	router, err := web.NewRouter(web.Deps{
		Auth:              authSvc,
		Sessions:          sessions,
		Gate:              accessGate,
		Limiters:          limiters,
		Metrics:           obsServer.Metrics(),
		Version:           version,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("SERVE_LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sessions.RunSweeper(ctx, cfg.Session.SweepInterval)
	}()

	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			cancel()
			shutdown(httpServer, obsServer, false, cfg.Server.ShutdownTimeout)
			<-sweeperDone
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("Dashboard listening on %s\n", listener.Addr())
	slog.Info("dashboard ready",
		"addr", listener.Addr().String(),
		"profile", profile.Name,
		"trust_proxy_headers", cfg.Server.TrustProxyHeaders)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err, ok := <-serveErr:
		if ok {
			runErr = oops.Code("SERVE_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	cancel()
	shutdown(httpServer, obsServer, cfg.Metrics.Addr != "", cfg.Server.ShutdownTimeout)
	<-sweeperDone
	slog.Info("shutdown complete")
	return runErr
}

func shutdown(httpServer *http.Server, obsServer ObservabilityServer, obsStarted bool, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Warn("error stopping dashboard server", "error", err)
	}
	if obsStarted {
		if err := obsServer.Stop(ctx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
}

// bootstrapAdmin creates the admin account on an empty database. Unless
// showPassword already put it in the log, the generated password is written
// once to out, since nothing can recover it afterwards.
func bootstrapAdmin(ctx context.Context, svc *auth.Service, showPassword bool, out io.Writer) error {
	password, err := svc.InitializeDefaultUser(ctx)
	switch {
	case errors.Is(err, auth.ErrAlreadyInitialized):
		return nil
	case err != nil:
		return err
	case !showPassword:
		printAdminCredentials(out, password)
	}
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error. It exits
// when an error arrives, the channel closes or ctx is done.
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
