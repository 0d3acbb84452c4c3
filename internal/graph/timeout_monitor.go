package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TimeoutMonitor runs store operations under a deadline and warns about
// operations approaching it, so slow probes show up before they fail.
type TimeoutMonitor struct {
	logger       *slog.Logger
	warningRatio float64 // Warn when execution reaches this % of timeout
}

// NewTimeoutMonitor creates a monitor with default settings
func NewTimeoutMonitor() *TimeoutMonitor {
	return &TimeoutMonitor{
		logger:       slog.Default().With("component", "timeout_monitor"),
		warningRatio: 0.8,
	}
}

// MonitorWithContext runs fn with a context bounded by timeout and logs the outcome.
// A non-positive timeout runs fn with ctx unchanged.
//
// Example usage:
//
//	monitor := NewTimeoutMonitor()
//	err := monitor.MonitorWithContext(ctx, OpHealthCheck, 5*time.Second, store.Ping)
func (tm *TimeoutMonitor) MonitorWithContext(
	ctx context.Context,
	operation string,
	timeout time.Duration,
	fn func(context.Context) error,
) error {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(runCtx)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			tm.logger.Error("operation timed out",
				"operation", operation,
				"duration_seconds", duration.Seconds(),
				"timeout_seconds", timeout.Seconds())
		} else {
			tm.logger.Warn("operation failed",
				"operation", operation,
				"duration_seconds", duration.Seconds(),
				"error", err)
		}
		return err
	}

	if timeout > 0 && duration >= time.Duration(float64(timeout)*tm.warningRatio) {
		tm.logger.Warn("operation approaching timeout",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds(),
			"percent_used", duration.Seconds()/timeout.Seconds()*100)
	} else {
		tm.logger.Debug("operation completed",
			"operation", operation,
			"duration_seconds", duration.Seconds())
	}

	return nil
}
