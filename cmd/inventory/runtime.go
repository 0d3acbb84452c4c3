package main

import (
	"context"
	"fmt"

	"github.com/rohankatakam/graphinventory/internal/availability"
	"github.com/rohankatakam/graphinventory/internal/dlq"
	"github.com/rohankatakam/graphinventory/internal/graph"
	"github.com/rohankatakam/graphinventory/internal/inventory"
	"github.com/rohankatakam/graphinventory/internal/metrics"
	"github.com/rohankatakam/graphinventory/internal/serializer"
)

// runtime holds the components a command wires from cfg
type runtime struct {
	store   graph.Store
	metrics *metrics.Metrics
	checker *availability.Checker
	queue   *dlq.Queue // nil when the DLQ is disabled
	service *inventory.Service
}

// openRuntime opens the graph store and, when enabled, the DLQ
func openRuntime(ctx context.Context) (*runtime, error) {
	store, err := graph.Open(ctx, cfg.Graph)
	if err != nil {
		return nil, err
	}

	rt := &runtime{store: store, metrics: metrics.New()}
	rt.checker = availability.NewChecker(store,
		availability.WithProbeTimeout(cfg.Availability.ProbeTimeout),
		availability.WithMetrics(rt.metrics))

	opts := []inventory.Option{
		inventory.WithChecker(rt.checker),
		inventory.WithSchemaVersion(cfg.Serializer.SchemaVersion),
		inventory.WithSourceOfTruth(cfg.Serializer.SourceOfTruth),
	}
	if cfg.DLQ.Enabled {
		q, err := dlq.Open(ctx, cfg.DLQ.Driver, cfg.DLQ.DSN, dlq.WithMetrics(rt.metrics))
		if err != nil {
			store.Close(ctx)
			return nil, err
		}
		rt.queue = q
		opts = append(opts, inventory.WithFailureRecorder(q))
	}

	ser := serializer.New(
		serializer.WithMaxAttempts(cfg.Serializer.MaxAttempts),
		serializer.WithRetryDelay(cfg.Serializer.RetryDelay),
		serializer.WithMetrics(rt.metrics))
	rt.service = inventory.NewService(store, ser, opts...)

	logger.WithField("backend", cfg.Graph.Backend).Debug("runtime opened")
	return rt, nil
}

func (rt *runtime) Close(ctx context.Context) {
	if rt.queue != nil {
		if err := rt.queue.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close DLQ")
		}
	}
	if err := rt.store.Close(ctx); err != nil {
		logger.WithError(err).Warn("Failed to close graph store")
	}
}

// openQueue opens only the DLQ, for the failures commands
func openQueue(ctx context.Context) (*dlq.Queue, error) {
	if !cfg.DLQ.Enabled {
		return nil, fmt.Errorf("dead-letter queue is disabled (dlq.enabled=false)")
	}
	return dlq.Open(ctx, cfg.DLQ.Driver, cfg.DLQ.DSN)
}
