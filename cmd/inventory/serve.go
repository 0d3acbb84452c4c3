package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/graphinventory/internal/api"
	"github.com/rohankatakam/graphinventory/internal/availability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve liveness, availability admin and metrics endpoints",
	Long: `serve opens the graph store, refreshes the availability cache on a
fixed interval and serves /healthz, /admin/availability/clear and /metrics
until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	server := api.NewServer(rt.checker,
		api.WithMetrics(rt.metrics),
		api.WithActualProbeLimit(cfg.Server.ActualProbeRate, cfg.Server.ActualProbeBurst))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gctx, cfg.Server.ListenAddr)
	})

	if cfg.Availability.RefreshInterval > 0 {
		refresher := availability.NewRefresher(rt.checker, cfg.Availability.RefreshInterval)
		g.Go(func() error {
			refresher.Run(gctx)
			return nil
		})
	} else {
		logger.Info("Availability refresher disabled; cache follows on-demand probes only")
	}

	logger.WithField("addr", cfg.Server.ListenAddr).
		WithField("backend", cfg.Graph.Backend).
		Info("Graph inventory serving")

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Graph inventory stopped")
	return nil
}
