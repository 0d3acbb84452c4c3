package availability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rohankatakam/graphinventory/internal/graph/graphtest"
	"github.com/rohankatakam/graphinventory/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProber returns err and counts calls
type stubProber struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *stubProber) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *stubProber) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *stubProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestCachedStartsUnknown(t *testing.T) {
	prober := &stubProber{}
	c := NewChecker(prober)

	status := c.IsAvailable(context.Background(), Cached)
	assert.Equal(t, StatusUnknown, status)
	assert.False(t, status.Known())
	assert.False(t, status.Available())
	assert.Equal(t, 0, prober.count(), "cached reads never probe")
}

func TestCachedMirrorsLastActual(t *testing.T) {
	ctx := context.Background()
	prober := &stubProber{}
	c := NewChecker(prober)

	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Actual))
	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Cached))

	prober.set(errors.New("connection refused"))
	assert.Equal(t, StatusUnavailable, c.IsAvailable(ctx, Actual))
	status := c.IsAvailable(ctx, Cached)
	assert.Equal(t, StatusUnavailable, status)
	assert.True(t, status.Known(), "known unavailable is distinct from unknown")

	prober.set(nil)
	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Actual))
	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Cached))
	assert.Equal(t, 3, prober.count())
}

func TestClearThenActualThenCached(t *testing.T) {
	ctx := context.Background()
	prober := &stubProber{}
	c := NewChecker(prober)

	c.IsAvailable(ctx, Actual)
	c.ClearCachedIndicator()
	assert.Equal(t, StatusUnknown, c.IsAvailable(ctx, Cached))

	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Actual))
	before := prober.count()
	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Cached))
	assert.Equal(t, before, prober.count(), "cached read after actual does not probe again")
}

func TestClearAfterUnavailable(t *testing.T) {
	ctx := context.Background()
	c := NewChecker(&stubProber{err: errors.New("down")})

	c.IsAvailable(ctx, Actual)
	c.ClearCachedIndicator()
	c.ClearCachedIndicator()
	assert.Equal(t, StatusUnknown, c.IsAvailable(ctx, Cached))

	_, last := c.Snapshot()
	assert.True(t, last.IsZero())
}

func TestProbePanicBecomesUnavailable(t *testing.T) {
	ctx := context.Background()
	store := graphtest.NewFaultyStore(nil)
	store.OnPing(func(context.Context) error { panic("driver bug") })

	c := NewChecker(store)
	var status Status
	assert.NotPanics(t, func() { status = c.IsAvailable(ctx, Actual) })
	assert.Equal(t, StatusUnavailable, status)
	assert.Equal(t, StatusUnavailable, c.IsAvailable(ctx, Cached))
}

func TestNilProberIsUnavailable(t *testing.T) {
	c := NewChecker(nil)
	assert.Equal(t, StatusUnavailable, c.IsAvailable(context.Background(), Actual))
}

func TestProbeTimeout(t *testing.T) {
	store := graphtest.NewFaultyStore(nil)
	store.OnPing(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	c := NewChecker(store, WithProbeTimeout(10*time.Millisecond))
	start := time.Now()
	assert.Equal(t, StatusUnavailable, c.IsAvailable(context.Background(), Actual))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProbeAgainstStore(t *testing.T) {
	ctx := context.Background()
	store := graphtest.NewFaultyStore(nil).Fail(graphtest.OpPing, 1, errors.New("refused"))

	c := NewChecker(store)
	assert.Equal(t, StatusUnavailable, c.IsAvailable(ctx, Actual))
	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Actual))

	require.NoError(t, store.Close(ctx))
	assert.Equal(t, StatusUnavailable, c.IsAvailable(ctx, Actual))
}

func TestSnapshotRecordsCompletion(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewChecker(&stubProber{}, WithClock(func() time.Time { return at }))

	c.IsAvailable(context.Background(), Actual)
	status, last := c.Snapshot()
	assert.Equal(t, StatusAvailable, status)
	assert.Equal(t, at, last)
}

func TestLastCompletedProbeWins(t *testing.T) {
	ctx := context.Background()
	store := graphtest.NewFaultyStore(nil)

	release := make(chan struct{})
	var calls int32
	store.OnPing(func(ctx context.Context) error {
		// The first probe blocks and fails; the second succeeds at once
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
			return errors.New("slow failure")
		}
		return nil
	})

	c := NewChecker(store)

	done := make(chan Status)
	go func() { done <- c.IsAvailable(ctx, Actual) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Actual))
	assert.Equal(t, StatusAvailable, c.IsAvailable(ctx, Cached))

	close(release)
	assert.Equal(t, StatusUnavailable, <-done)
	assert.Equal(t, StatusUnavailable, c.IsAvailable(ctx, Cached), "completion order, not start order")
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewChecker(&stubProber{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				c.IsAvailable(ctx, Actual)
			case 1:
				c.IsAvailable(ctx, Cached)
			default:
				c.ClearCachedIndicator()
			}
		}(i)
	}
	wg.Wait()

	status := c.IsAvailable(ctx, Cached)
	assert.Contains(t, []Status{StatusUnknown, StatusAvailable}, status)
}

func TestMetricsTrackCacheState(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	prober := &stubProber{err: errors.New("down")}
	c := NewChecker(prober, WithMetrics(m))

	c.IsAvailable(ctx, Actual)
	expected := `
# HELP graphinventory_availability_cache_state Cached store status: 0 unknown, 1 available, 2 unavailable.
# TYPE graphinventory_availability_cache_state gauge
graphinventory_availability_cache_state 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"graphinventory_availability_cache_state"))

	c.ClearCachedIndicator()
	expected = strings.Replace(expected, "cache_state 2", "cache_state 0", 1)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"graphinventory_availability_cache_state"))
}

func TestParseCheckerType(t *testing.T) {
	tests := []struct {
		in      string
		want    CheckerType
		wantErr bool
	}{
		{"actual", Actual, false},
		{"ACTUAL", Actual, false},
		{"cached", Cached, false},
		{"", Cached, false},
		{"fresh", Cached, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCheckerType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "available", StatusAvailable.String())
	assert.Equal(t, "unavailable", StatusUnavailable.String())
	assert.Equal(t, "actual", Actual.String())
	assert.Equal(t, "cached", Cached.String())
}

func TestCheckReturnsMatchingTimestamp(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	clock := func() time.Time { return base.Add(time.Duration(ticks.Add(1)) * time.Second) }

	prober := &stubProber{}
	c := NewChecker(prober, WithClock(clock))

	status, at := c.Check(ctx, Cached)
	assert.Equal(t, StatusUnknown, status)
	assert.True(t, at.IsZero())

	first, firstAt := c.Check(ctx, Actual)
	assert.Equal(t, StatusAvailable, first)
	assert.Equal(t, base.Add(time.Second), firstAt)

	prober.set(errors.New("down"))
	second, secondAt := c.Check(ctx, Actual)
	assert.Equal(t, StatusUnavailable, second)
	assert.Equal(t, base.Add(2*time.Second), secondAt)

	cached, cachedAt := c.Check(ctx, Cached)
	assert.Equal(t, StatusUnavailable, cached)
	assert.Equal(t, secondAt, cachedAt)

	c.ClearCachedIndicator()
	cached, cachedAt = c.Check(ctx, Cached)
	assert.Equal(t, StatusUnknown, cached)
	assert.True(t, cachedAt.IsZero())
}
