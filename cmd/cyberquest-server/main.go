package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cyberquest/analytics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config
	logger := app.Logger

	logger.Info("starting cyberquest server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"leaderboard_backend", cfg.Leaderboard.Backend,
		"levels", len(app.Service.Catalog()))
	logger.Debug("effective configuration", "config", cfg.String())

	srv := app.Server
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	if cfg.Analytics.ExportEnabled {
		var exp analytics.Exporter = analytics.NewLogExporter(logger)
		if cfg.Analytics.Endpoint != "" {
			exp = analytics.NewHTTPExporter(cfg.Analytics.Endpoint, cfg.Analytics.APIKey)
		}
		g.Go(func() error {
			analytics.Run(gctx, app.Funnel, exp, cfg.Analytics.Interval, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	cleanup()
	app.Reporter.Flush(2 * time.Second)

	if err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
