package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a process-local graph. Like BoltStore, at most one
// transaction is open at a time: Begin waits for the writer slot and holds it
// until Commit or Rollback. The transaction works on a private copy of the
// committed graph, and Commit installs that copy.
type MemoryStore struct {
	mu       sync.RWMutex
	writer   chan struct{}
	vertices map[string]Vertex
	edges    map[string]Edge
	closed   bool
}

// NewMemoryStore creates an empty in-memory graph
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		writer:   make(chan struct{}, 1),
		vertices: make(map[string]Vertex),
		edges:    make(map[string]Edge),
	}
}

func (m *MemoryStore) Name() string { return "memory" }

// Begin blocks until no other transaction is open or ctx is done, then
// snapshots the committed graph into the new transaction.
func (m *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := m.Ping(ctx); err != nil {
		return nil, err
	}

	select {
	case m.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to begin memory transaction: %w", ctx.Err())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		<-m.writer
		return nil, ErrStoreClosed
	}

	g := newMemGraph()
	for id, v := range m.vertices {
		g.vertices[id] = v
	}
	for id, e := range m.edges {
		g.edges[id] = e
	}

	return &memoryTx{
		id:    uuid.NewString(),
		store: m,
		graph: g,
	}, nil
}

// Ping fails only once the store is closed
func (m *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Counts returns committed vertex and edge counts
func (m *MemoryStore) Counts() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vertices), len(m.edges)
}

// memGraph is a transaction's working copy of the graph
type memGraph struct {
	vertices map[string]Vertex
	edges    map[string]Edge
}

func newMemGraph() *memGraph {
	return &memGraph{
		vertices: make(map[string]Vertex),
		edges:    make(map[string]Edge),
	}
}

func (g *memGraph) allVertices() ([]Vertex, error) {
	out := make([]Vertex, 0, len(g.vertices))
	for _, v := range g.vertices {
		out = append(out, v)
	}
	return out, nil
}

func (g *memGraph) vertexByID(id string) (Vertex, bool, error) {
	v, ok := g.vertices[id]
	return v, ok, nil
}

func (g *memGraph) allEdges() ([]Edge, error) {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out, nil
}

func (g *memGraph) findEdge(label, from, to string) (Edge, bool) {
	for _, e := range g.edges {
		if e.Label == label && e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

type memoryTx struct {
	id    string
	store *MemoryStore
	graph *memGraph
	done  bool
}

func (t *memoryTx) ID() string { return t.id }

func (t *memoryTx) Evaluate(ctx context.Context, tr Traversal) ([]Vertex, error) {
	if t.done {
		return nil, ErrTxClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return evaluateView(t.graph, tr)
}

func (t *memoryTx) AddVertex(ctx context.Context, v Vertex) (Vertex, error) {
	if t.done {
		return Vertex{}, ErrTxClosed
	}
	if v.Label == "" {
		return Vertex{}, fmt.Errorf("vertex label required")
	}
	v.ID = uuid.NewString()
	v.Properties = normalizeProps(v.Properties)

	t.graph.vertices[v.ID] = v
	return v, nil
}

func (t *memoryTx) UpdateVertex(ctx context.Context, id string, props map[string]any) (Vertex, error) {
	if t.done {
		return Vertex{}, ErrTxClosed
	}
	v, ok := t.graph.vertices[id]
	if !ok {
		return Vertex{}, fmt.Errorf("update %s: %w", id, ErrVertexNotFound)
	}
	v = mergeVertex(v, props)
	t.graph.vertices[id] = v
	return v, nil
}

func mergeVertex(v Vertex, props map[string]any) Vertex {
	merged := cloneProps(v.Properties)
	for k, val := range props {
		if val == nil {
			delete(merged, k)
			continue
		}
		merged[k] = normalizeValue(val)
	}
	v.Properties = merged
	return v
}

func (t *memoryTx) RemoveVertex(ctx context.Context, id string) error {
	if t.done {
		return ErrTxClosed
	}
	if _, ok := t.graph.vertices[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrVertexNotFound)
	}
	removeVertex(t.graph, id)
	return nil
}

func removeVertex(g *memGraph, id string) {
	delete(g.vertices, id)
	for eid, e := range g.edges {
		if e.From == id || e.To == id {
			delete(g.edges, eid)
		}
	}
}

func (t *memoryTx) AddEdge(ctx context.Context, e Edge) (Edge, error) {
	if t.done {
		return Edge{}, ErrTxClosed
	}
	if e.Label == "" {
		return Edge{}, fmt.Errorf("edge label required")
	}
	if _, ok := t.graph.vertices[e.From]; !ok {
		return Edge{}, fmt.Errorf("edge %s from %s: %w", e.Label, e.From, ErrVertexNotFound)
	}
	if _, ok := t.graph.vertices[e.To]; !ok {
		return Edge{}, fmt.Errorf("edge %s to %s: %w", e.Label, e.To, ErrVertexNotFound)
	}
	if existing, ok := t.graph.findEdge(e.Label, e.From, e.To); ok {
		return existing, nil
	}

	e.ID = uuid.NewString()
	e.Properties = normalizeProps(e.Properties)
	t.graph.edges[e.ID] = e
	return e, nil
}

// Commit installs the transaction's graph. The writer slot guarantees
// nothing else changed the committed graph since Begin.
func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	defer t.release()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return ErrStoreClosed
	}

	t.store.vertices = t.graph.vertices
	t.store.edges = t.graph.edges
	t.graph = nil
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	t.graph = nil
	t.release()
	return nil
}

func (t *memoryTx) release() {
	<-t.store.writer
}
