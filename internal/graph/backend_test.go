package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	bolt "go.etcd.io/bbolt"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("syntax error"), false},
		{"transient error", &TransientError{Op: "evaluate", Err: errors.New("conflict")}, true},
		{"wrapped transient error", fmt.Errorf("resolve parent: %w", &TransientError{Op: "evaluate"}), true},
		{"bolt lock timeout", fmt.Errorf("open: %w", bolt.ErrTimeout), true},
		{"neo4j deadlock", &neo4j.Neo4jError{Code: "Neo.TransientError.Transaction.DeadlockDetected", Msg: "deadlock"}, true},
		{"neo4j syntax", &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad"}, false},
		{"vertex not found", ErrVertexNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientErrorMessage(t *testing.T) {
	err := &TransientError{Op: "evaluate", Err: errors.New("lock held")}
	assert.Equal(t, "transient store error during evaluate: lock held", err.Error())
	assert.Equal(t, "transient store error during evaluate", (&TransientError{Op: "evaluate"}).Error())
}

func TestReservedProperty(t *testing.T) {
	for _, name := range []string{PropNodeKey, PropResourceVersion, PropSchemaVersion, PropLastModSource} {
		assert.True(t, ReservedProperty(name))
	}
	assert.False(t, ReservedProperty("status"))
}

func TestTraversalString(t *testing.T) {
	tr := Key("cloud-region", "east").In("BELONGS_TO", "tenant", map[string]any{"status": "active", PropNodeKey: "a"})
	assert.Equal(t, "V(cloud-region,node_key=east).in(BELONGS_TO)(tenant,node_key=a,status=active)", tr.String())
	assert.Equal(t, "tenant", tr.Last().Label)
	assert.False(t, tr.IsZero())
	assert.True(t, Traversal{}.IsZero())
}

func TestTraversalBuildersDoNotAlias(t *testing.T) {
	base := Key("cloud-region", "east")
	a := base.In("BELONGS_TO", "tenant", nil)
	b := base.In("LOCATED_IN", "complex", nil)
	assert.Len(t, base.Steps, 1)
	assert.Equal(t, "BELONGS_TO", a.Last().EdgeLabel)
	assert.Equal(t, "LOCATED_IN", b.Last().EdgeLabel)
}

func TestTransactionConfig(t *testing.T) {
	cfg := GetConfigForOperation(OpHealthCheck)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Len(t, cfg.AsNeo4jConfig(), 2)

	unknown := GetConfigForOperation("reindex")
	assert.Equal(t, 60*time.Second, unknown.Timeout)
	assert.Equal(t, "unknown", unknown.Metadata["type"])

	tagged := cfg.WithCustomMetadata("request_id", "r-1")
	assert.Equal(t, "r-1", tagged.Metadata["request_id"])
	_, leaked := cfg.Metadata["request_id"]
	assert.False(t, leaked)

	assert.Equal(t, time.Second, cfg.WithTimeout(time.Second).Timeout)
	assert.Empty(t, TransactionConfig{}.AsNeo4jConfig())
}

func TestTransactionConfigFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 30*time.Second, transactionConfigFrom(ctx, OpSerialize).Timeout)

	ctx = WithTransactionConfig(ctx, GetConfigForOperation(OpBulkApply))
	assert.Equal(t, 3*time.Minute, transactionConfigFrom(ctx, OpSerialize).Timeout)
}

func TestTimeoutMonitor(t *testing.T) {
	tm := NewTimeoutMonitor()
	ctx := context.Background()

	err := tm.MonitorWithContext(ctx, OpHealthCheck, time.Second, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	assert.NoError(t, err)

	err = tm.MonitorWithContext(ctx, OpHealthCheck, 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = tm.MonitorWithContext(ctx, OpQuery, 0, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}
