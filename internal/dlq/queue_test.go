package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/metrics"
)

func openTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	q, err := Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "dlq.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dlq driver")
}

func TestEnqueueAndList(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	cause := errors.MaxRetriesExceeded("tenant", "t1", 3, fmt.Errorf("lock wait"))
	err := q.Enqueue(ctx, Failure{
		ResourceType: "tenant",
		ResourceKey:  "t1",
		Operation:    "create",
		RequestID:    "req-1",
		Err:          cause,
		Payload:      map[string]any{"type": "tenant", "key": "t1"},
	})
	require.NoError(t, err)

	entries, err := q.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "tenant", e.ResourceType)
	assert.Equal(t, "t1", e.ResourceKey)
	assert.Equal(t, "create", e.Operation)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, errors.CodeMaxRetriesExceeded, e.ErrorCode)
	assert.Equal(t, cause.Error(), e.ErrorMessage)
	assert.Equal(t, 0, e.RetryCount)
	assert.Nil(t, e.LastRetryAt)
	assert.False(t, e.CreatedAt.IsZero())

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.Payload), &payload))
	assert.Equal(t, "t1", payload["key"])
}

func TestEnqueueRepeatedFailureIncrementsRetryCount(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, Failure{
			ResourceType: "tenant",
			ResourceKey:  "t1",
			Operation:    "update",
			RequestID:    fmt.Sprintf("req-%d", i),
			Err:          errors.ResourceNotFound("tenant", "t1"),
		}))
	}

	entry, err := q.Get(ctx, "tenant", "t1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.RetryCount)
	assert.Equal(t, "req-2", entry.RequestID)
	assert.Equal(t, errors.CodeResourceNotFound, entry.ErrorCode)
	assert.NotNil(t, entry.LastRetryAt)

	entries, err := q.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEnqueueUntypedErrorUsesInternalCode(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "pserver", ResourceKey: "p1", Operation: "delete", Err: fmt.Errorf("boom")}))

	entry, err := q.Get(ctx, "pserver", "p1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, errors.CodeInternal, entry.ErrorCode)
	assert.Empty(t, entry.Payload)
}

func TestEnqueueRequiresError(t *testing.T) {
	q := openTestQueue(t)
	err := q.Enqueue(context.Background(), Failure{ResourceType: "tenant", ResourceKey: "t1"})
	require.Error(t, err)
}

func TestListOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "tenant", ResourceKey: key, Operation: "create", Err: fmt.Errorf("x")}))
	}

	entries, err := q.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ResourceKey)
	assert.Equal(t, "b", entries[1].ResourceKey)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "tenant", ResourceKey: "t1", Operation: "create", Err: fmt.Errorf("x")}))
	entry, err := q.Get(ctx, "tenant", "t1")
	require.NoError(t, err)
	require.NotNil(t, entry)

	removed, err := q.Resolve(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.Resolve(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	entry, err = q.Get(ctx, "tenant", "t1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestResolveResource(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "tenant", ResourceKey: "t1", Operation: "create", Err: fmt.Errorf("x")}))
	require.NoError(t, q.ResolveResource(ctx, "tenant", "t1"))
	require.NoError(t, q.ResolveResource(ctx, "tenant", "missing"))

	entries, err := q.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	stats, err := q.GetStats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, *stats)

	fail := func(key string) {
		require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "tenant", ResourceKey: key, Operation: "create", Err: fmt.Errorf("x")}))
	}
	fail("a")
	fail("b")
	fail("b")
	fail("b")

	stats, err = q.GetStats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.RetryableEntries)
	assert.Equal(t, 1, stats.ExhaustedRetries)
}

func TestPurgeOld(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "tenant", ResourceKey: "t1", Operation: "create", Err: fmt.Errorf("x")}))

	n, err := q.PurgeOld(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = q.PurgeOld(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnqueueCountsMetric(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	q := openTestQueue(t, WithMetrics(m))

	require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "tenant", ResourceKey: "t1", Operation: "create", Err: fmt.Errorf("x")}))
	require.NoError(t, q.Enqueue(ctx, Failure{ResourceType: "tenant", ResourceKey: "t1", Operation: "create", Err: fmt.Errorf("x")}))

	expected := `
# HELP graphinventory_dlq_records_total Terminal failures written to the dead-letter queue.
# TYPE graphinventory_dlq_records_total counter
graphinventory_dlq_records_total 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "graphinventory_dlq_records_total"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Migrate(context.Background()))
}

func TestOpenCreatesSQLiteDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "dlq.db")
	q, err := Open(context.Background(), "sqlite3", path)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), Failure{ResourceType: "tenant", ResourceKey: "t1", Operation: "create", Err: fmt.Errorf("x")}))
}
