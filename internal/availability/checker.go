// Package availability decides whether the graph store is usable.
//
// A Checker keeps one cached verdict per process. ACTUAL checks probe the
// store and overwrite the verdict when they complete; CACHED checks only read
// it. Callers must treat StatusUnknown (never probed since start or the last
// clear) differently from StatusUnavailable.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rohankatakam/graphinventory/internal/graph"
	"github.com/rohankatakam/graphinventory/internal/metrics"
)

// CheckerType selects between a fresh probe and the cached verdict
type CheckerType int

const (
	Actual CheckerType = iota
	Cached
)

func (t CheckerType) String() string {
	switch t {
	case Actual:
		return "actual"
	case Cached:
		return "cached"
	default:
		return fmt.Sprintf("CheckerType(%d)", int(t))
	}
}

// ParseCheckerType accepts "actual" and "cached"
func ParseCheckerType(s string) (CheckerType, error) {
	switch s {
	case "actual", "ACTUAL":
		return Actual, nil
	case "cached", "CACHED", "":
		return Cached, nil
	}
	return Cached, fmt.Errorf("unknown checker type %q (actual, cached)", s)
}

// Status is the tri-state availability verdict
type Status int

const (
	StatusUnknown Status = iota
	StatusAvailable
	StatusUnavailable
)

// Known reports whether a probe has produced this status
func (s Status) Known() bool {
	return s == StatusAvailable || s == StatusUnavailable
}

// Available reports whether the store was reachable
func (s Status) Available() bool {
	return s == StatusAvailable
}

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Prober performs the cheapest round trip proving the store is usable.
// Every graph.Store satisfies it.
type Prober interface {
	Ping(ctx context.Context) error
}

// Checker owns the cached verdict. Safe for concurrent use.
type Checker struct {
	prober  Prober
	timeout time.Duration
	monitor *graph.TimeoutMonitor
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.RWMutex
	status    Status
	lastProbe time.Time
}

// Option configures a Checker
type Option func(*Checker)

// WithProbeTimeout bounds one ACTUAL probe
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger replaces the component logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records probe results and the cached state
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// WithClock overrides the time source for probe timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChecker creates a checker whose cache starts Unknown. The default probe
// timeout is the health check transaction timeout.
func NewChecker(prober Prober, opts ...Option) *Checker {
	c := &Checker{
		prober:  prober,
		timeout: graph.GetConfigForOperation(graph.OpHealthCheck).Timeout,
		monitor: graph.NewTimeoutMonitor(),
		logger:  slog.Default().With("component", "availability"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAvailable answers with a fresh probe (Actual) or the cached verdict
// (Cached). Actual always returns a known status; Cached returns
// StatusUnknown when nothing has been probed since start or the last clear.
func (c *Checker) IsAvailable(ctx context.Context, t CheckerType) Status {
	status, _ := c.Check(ctx, t)
	return status
}

// Check is IsAvailable that also returns when the probe behind the status
// completed. Both values come from the same probe; the time is zero while
// the status is Unknown.
func (c *Checker) Check(ctx context.Context, t CheckerType) (Status, time.Time) {
	switch t {
	case Actual:
		return c.probeAndStore(ctx)
	case Cached:
		return c.Snapshot()
	default:
		c.logger.Warn("unknown checker type", "type", int(t))
		return StatusUnknown, time.Time{}
	}
}

// ClearCachedIndicator resets the cache to Unknown unconditionally
func (c *Checker) ClearCachedIndicator() {
	c.mu.Lock()
	c.status = StatusUnknown
	c.lastProbe = time.Time{}
	c.mu.Unlock()

	c.metrics.SetCacheState(int(StatusUnknown))
	c.logger.Info("availability cache cleared")
}

// Snapshot returns the cached verdict and when the probe that produced it completed
func (c *Checker) Snapshot() (Status, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.lastProbe
}

func (c *Checker) probeAndStore(ctx context.Context) (Status, time.Time) {
	start := time.Now()
	err := c.probe(ctx)
	elapsed := time.Since(start)

	status := StatusAvailable
	if err != nil {
		status = StatusUnavailable
	}

	// Written at completion: the last probe to finish wins
	c.mu.Lock()
	previous := c.status
	c.status = status
	c.lastProbe = c.now()
	at := c.lastProbe
	c.mu.Unlock()

	c.metrics.ObserveProbe(status.String(), elapsed)
	c.metrics.SetCacheState(int(status))

	if status != previous {
		if err != nil {
			c.logger.Warn("graph store unavailable", "previous", previous.String(), "error", err)
		} else {
			c.logger.Info("graph store available", "previous", previous.String())
		}
	}
	return status, at
}

// probe runs the prober under the timeout, converting a panic into an error
func (c *Checker) probe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("availability probe panicked: %v", r)
		}
	}()
	if c.prober == nil {
		return fmt.Errorf("no prober configured")
	}
	return c.monitor.MonitorWithContext(ctx, graph.OpHealthCheck, c.timeout, c.prober.Ping)
}
