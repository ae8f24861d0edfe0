package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/cardgateway/internal/bootstrap"
	"github.com/cassiomorais/cardgateway/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "cardgateway-reconciler", "cardgateway_reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	reconCfg := app.Config.Reconciliation
	reconciler := worker.NewReconciler(app.Method, reconCfg, app.Metrics, app.Logger)

	app.Logger.Info().
		Dur("poll_interval", reconCfg.PollInterval).
		Int("batch_size", reconCfg.BatchSize).
		Dur("min_age", reconCfg.MinAge).
		Str("instance", app.Config.InstanceID).
		Msg("Reconciler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reconciler.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down reconciler...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Reconciler error")
	}
	app.Logger.Info().Msg("Reconciler exited")
}
