package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// neo4jTx is a graph transaction backed by a driver ExplicitTransaction.
// All queries are parameterized through CypherBuilder.
//
// The server aborts an explicit transaction on the first failed statement,
// so after any error every further statement fails with ErrTxFailed. That
// error is not transient; callers must roll back and begin again.
type neo4jTx struct {
	id      string
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	logger  *slog.Logger
	done    bool
	failed  error
}

func (t *neo4jTx) ID() string { return t.id }

func (t *neo4jTx) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if t.done {
		return nil, ErrTxClosed
	}
	if t.failed != nil {
		return nil, fmt.Errorf("%w: %v", ErrTxFailed, t.failed)
	}
	result, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		t.failed = err
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		t.failed = err
		return nil, err
	}
	return records, nil
}

func (t *neo4jTx) Evaluate(ctx context.Context, tr Traversal) ([]Vertex, error) {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildTraversal(tr)
	if err != nil {
		return nil, fmt.Errorf("failed to build traversal %s: %w", tr, err)
	}

	records, err := t.run(ctx, cypher, builder.Params())
	if err != nil {
		return nil, fmt.Errorf("traversal %s failed: %w", tr, err)
	}

	vertices := make([]Vertex, 0, len(records))
	for _, rec := range records {
		v, err := recordToVertex(rec)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, v)
	}

	t.logger.Debug("traversal evaluated", "tx_id", t.id, "traversal", tr.String(), "matches", len(vertices))
	return vertices, nil
}

func (t *neo4jTx) AddVertex(ctx context.Context, v Vertex) (Vertex, error) {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildCreateVertex(v.Label, normalizeProps(v.Properties))
	if err != nil {
		return Vertex{}, fmt.Errorf("failed to build vertex query: %w", err)
	}
	return t.singleVertex(ctx, cypher, builder.Params(), "create "+v.Label)
}

func (t *neo4jTx) UpdateVertex(ctx context.Context, id string, props map[string]any) (Vertex, error) {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildUpdateVertex(id, normalizeProps(props))
	if err != nil {
		return Vertex{}, fmt.Errorf("failed to build update query: %w", err)
	}
	return t.singleVertex(ctx, cypher, builder.Params(), "update "+id)
}

func (t *neo4jTx) singleVertex(ctx context.Context, cypher string, params map[string]any, what string) (Vertex, error) {
	records, err := t.run(ctx, cypher, params)
	if err != nil {
		return Vertex{}, fmt.Errorf("%s failed: %w", what, err)
	}
	if len(records) == 0 {
		return Vertex{}, fmt.Errorf("%s: %w", what, ErrVertexNotFound)
	}
	return recordToVertex(records[0])
}

func (t *neo4jTx) RemoveVertex(ctx context.Context, id string) error {
	builder := NewCypherBuilder()
	cypher := builder.BuildDeleteVertex(id)

	records, err := t.run(ctx, cypher, builder.Params())
	if err != nil {
		return fmt.Errorf("remove %s failed: %w", id, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("remove %s: %w", id, ErrVertexNotFound)
	}
	removed, _ := records[0].Get("removed")
	if n, ok := removed.(int64); !ok || n == 0 {
		return fmt.Errorf("remove %s: %w", id, ErrVertexNotFound)
	}
	return nil
}

func (t *neo4jTx) AddEdge(ctx context.Context, e Edge) (Edge, error) {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeEdge(e.From, e.To, e.Label, normalizeProps(e.Properties))
	if err != nil {
		return Edge{}, fmt.Errorf("failed to build edge query: %w", err)
	}

	records, err := t.run(ctx, cypher, builder.Params())
	if err != nil {
		return Edge{}, fmt.Errorf("failed to create edge %s: from=%s to=%s: %w", e.Label, e.From, e.To, err)
	}

	// No record means one of the endpoints does not exist
	if len(records) == 0 {
		return Edge{}, fmt.Errorf("edge %s: from=%s to=%s: %w", e.Label, e.From, e.To, ErrVertexNotFound)
	}
	if id, ok := records[0].Get("id"); ok {
		e.ID = fmt.Sprintf("%v", id)
	}
	return e, nil
}

func (t *neo4jTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	defer t.session.Close(ctx)

	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("neo4j commit failed: %w", err)
	}
	return nil
}

func (t *neo4jTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	defer t.session.Close(ctx)

	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("neo4j rollback failed: %w", err)
	}
	return nil
}

// recordToVertex converts a row produced by vertexReturn
func recordToVertex(rec *neo4j.Record) (Vertex, error) {
	rawID, ok := rec.Get("id")
	if !ok {
		return Vertex{}, fmt.Errorf("record has no id column")
	}

	v := Vertex{ID: fmt.Sprintf("%v", rawID), Properties: map[string]any{}}

	if rawLabels, ok := rec.Get("labels"); ok {
		if labels, ok := rawLabels.([]any); ok && len(labels) > 0 {
			v.Label = fmt.Sprintf("%v", labels[0])
		}
	}

	if rawProps, ok := rec.Get("props"); ok {
		props, ok := rawProps.(map[string]any)
		if !ok {
			return Vertex{}, fmt.Errorf("unexpected type for props: %T (expected map)", rawProps)
		}
		v.Properties = normalizeProps(props)
	}

	return v, nil
}
