// Package graphtest provides store fakes for exercising retry and
// availability logic without a live graph engine.
package graphtest

import (
	"context"
	"sync"

	"github.com/rohankatakam/graphinventory/internal/graph"
)

// Op names a store call FaultyStore can fail
type Op string

const (
	OpBegin        Op = "begin"
	OpEvaluate     Op = "evaluate"
	OpAddVertex    Op = "add_vertex"
	OpUpdateVertex Op = "update_vertex"
	OpRemoveVertex Op = "remove_vertex"
	OpAddEdge      Op = "add_edge"
	OpCommit       Op = "commit"
	OpPing         Op = "ping"
)

// FaultyStore wraps a Store and fails scheduled calls. Each Fail call
// queues errors for one operation; queued errors are consumed in order, one
// per call, and calls beyond the queue reach the wrapped store.
type FaultyStore struct {
	graph.Store

	mu     sync.Mutex
	faults map[Op][]error
	calls  map[Op]int
	pingFn func(ctx context.Context) error
}

// NewFaultyStore wraps inner, or a fresh MemoryStore when inner is nil
func NewFaultyStore(inner graph.Store) *FaultyStore {
	if inner == nil {
		inner = graph.NewMemoryStore()
	}
	return &FaultyStore{
		Store:  inner,
		faults: make(map[Op][]error),
		calls:  make(map[Op]int),
	}
}

// Fail queues err for the next n calls of op
func (f *FaultyStore) Fail(op Op, n int, err error) *FaultyStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.faults[op] = append(f.faults[op], err)
	}
	return f
}

// Transient returns the kind of error graph.IsTransient accepts
func Transient(op Op) error {
	return &graph.TransientError{Op: string(op), Err: errTransient}
}

// OnPing replaces the wrapped store's Ping, e.g. to block or panic
func (f *FaultyStore) OnPing(fn func(ctx context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingFn = fn
}

// Calls returns how many times op was invoked, failed calls included
func (f *FaultyStore) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Pending returns how many queued faults for op have not fired yet
func (f *FaultyStore) Pending(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.faults[op])
}

// Reset drops queued faults and call counts
func (f *FaultyStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[Op][]error)
	f.calls = make(map[Op]int)
}

func (f *FaultyStore) next(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	queue := f.faults[op]
	if len(queue) == 0 {
		return nil
	}
	f.faults[op] = queue[1:]
	return queue[0]
}

func (f *FaultyStore) Begin(ctx context.Context) (graph.Tx, error) {
	if err := f.next(OpBegin); err != nil {
		return nil, err
	}
	tx, err := f.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, store: f}, nil
}

func (f *FaultyStore) Ping(ctx context.Context) error {
	if err := f.next(OpPing); err != nil {
		return err
	}
	f.mu.Lock()
	fn := f.pingFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return f.Store.Ping(ctx)
}

type faultyTx struct {
	graph.Tx
	store *FaultyStore
}

func (t *faultyTx) Evaluate(ctx context.Context, tr graph.Traversal) ([]graph.Vertex, error) {
	if err := t.store.next(OpEvaluate); err != nil {
		return nil, err
	}
	return t.Tx.Evaluate(ctx, tr)
}

func (t *faultyTx) AddVertex(ctx context.Context, v graph.Vertex) (graph.Vertex, error) {
	if err := t.store.next(OpAddVertex); err != nil {
		return graph.Vertex{}, err
	}
	return t.Tx.AddVertex(ctx, v)
}

func (t *faultyTx) UpdateVertex(ctx context.Context, id string, props map[string]any) (graph.Vertex, error) {
	if err := t.store.next(OpUpdateVertex); err != nil {
		return graph.Vertex{}, err
	}
	return t.Tx.UpdateVertex(ctx, id, props)
}

func (t *faultyTx) RemoveVertex(ctx context.Context, id string) error {
	if err := t.store.next(OpRemoveVertex); err != nil {
		return err
	}
	return t.Tx.RemoveVertex(ctx, id)
}

func (t *faultyTx) AddEdge(ctx context.Context, e graph.Edge) (graph.Edge, error) {
	if err := t.store.next(OpAddEdge); err != nil {
		return graph.Edge{}, err
	}
	return t.Tx.AddEdge(ctx, e)
}

func (t *faultyTx) Commit(ctx context.Context) error {
	if err := t.store.next(OpCommit); err != nil {
		return err
	}
	return t.Tx.Commit(ctx)
}
