package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the HTTP API together with the alert poller
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API gateway and the alert poller",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting chainlens",
		zap.String("version", version), zap.String("commit", commit), zap.String("built", date))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gateway := a.gateway()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	if cfg.Alerts.Enabled {
		g.Go(func() error { return a.alerts.Run(gctx) })
	}

	g.Go(func() error {
		if err := gateway.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping services")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()

		if err := gateway.Stop(shutdownCtx); err != nil {
			logger.Error("error during gateway shutdown", zap.Error(err))
		}
		if err := a.agents.Shutdown(shutdownCtx); err != nil {
			logger.Error("agent runs did not stop in time", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("chainlens stopped")
	return nil
}
