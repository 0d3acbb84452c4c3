package availability

import (
	"context"
	"sync"
	"time"
)

// Refresher runs ACTUAL probes periodically so CACHED readers see a recent
// verdict. Thread-safe: Run may be called once; Stop from any goroutine.
type Refresher struct {
	checker  *Checker
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRefresher creates a refresher probing every interval
//
// Example:
//
//	refresher := NewRefresher(checker, 30*time.Second)
//	refresher.Start(ctx)
//	defer refresher.Stop()
func NewRefresher(checker *Checker, interval time.Duration) *Refresher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		checker:  checker,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the refresher in a new goroutine. A Stop issued after Start
// returns always waits for that goroutine.
func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Run probes immediately, then on every tick, until ctx is done or Stop is
// called. It blocks. Run after Stop returns without probing.
func (r *Refresher) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()
	r.run(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	if r.ctx.Err() != nil || ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.checker.logger.Info("availability refresher started", "interval", r.interval.String())

	r.checker.IsAvailable(ctx, Actual)

	for {
		select {
		case <-ticker.C:
			r.checker.IsAvailable(ctx, Actual)
		case <-ctx.Done():
			r.checker.logger.Info("availability refresher stopping", "reason", "context cancelled")
			return
		case <-r.ctx.Done():
			r.checker.logger.Info("availability refresher stopping", "reason", "stopped")
			return
		}
	}
}

// Stop ends Run or Start and waits for the probe loop to return
func (r *Refresher) Stop() {
	r.cancel()
	r.wg.Wait()
}
