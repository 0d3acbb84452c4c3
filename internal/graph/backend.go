package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	bolt "go.etcd.io/bbolt"
)

// Store opens transactions against a graph engine.
// Implemented by Neo4jStore (Cypher over bolt protocol), BoltStore (embedded
// bbolt file) and MemoryStore (tests and local runs).
type Store interface {
	// Name identifies the backend in logs and health output
	Name() string

	// Begin opens a transaction owned by the caller until Commit or Rollback
	Begin(ctx context.Context) (Tx, error)

	// Ping performs the cheapest round trip that proves the store is usable
	Ping(ctx context.Context) error

	// Close releases the underlying connection or file
	Close(ctx context.Context) error
}

// Tx is a single-owner unit of graph mutations.
// A Tx is not safe for concurrent use; mutations apply in issue order.
type Tx interface {
	// ID returns a unique transaction identifier
	ID() string

	// Evaluate returns the vertices currently matched by t, ordered by ID
	Evaluate(ctx context.Context, t Traversal) ([]Vertex, error)

	// AddVertex creates a vertex and returns it with its store-assigned ID
	AddVertex(ctx context.Context, v Vertex) (Vertex, error)

	// UpdateVertex merges props into an existing vertex; a nil value removes the property
	UpdateVertex(ctx context.Context, id string, props map[string]any) (Vertex, error)

	// RemoveVertex deletes a vertex together with its incident edges
	RemoveVertex(ctx context.Context, id string) error

	// AddEdge links two vertices. Adding an edge that already exists with the
	// same label and endpoints returns the existing edge.
	AddEdge(ctx context.Context, e Edge) (Edge, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Reserved vertex properties written by the serializer
const (
	PropNodeKey         = "node_key"
	PropResourceVersion = "resource_version"
	PropSchemaVersion   = "schema_version"
	PropLastModSource   = "last_mod_source"
)

// ReservedProperty reports whether name is managed by the store layer
func ReservedProperty(name string) bool {
	switch name {
	case PropNodeKey, PropResourceVersion, PropSchemaVersion, PropLastModSource:
		return true
	}
	return false
}

// Vertex is a labelled node with scalar properties
type Vertex struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// Key returns the natural key stored under PropNodeKey
func (v Vertex) Key() string {
	if k, ok := v.Properties[PropNodeKey]; ok {
		return fmt.Sprintf("%v", k)
	}
	return ""
}

// Prop returns a property as a string, "" when absent
func (v Vertex) Prop(name string) string {
	if p, ok := v.Properties[name]; ok && p != nil {
		return fmt.Sprintf("%v", p)
	}
	return ""
}

// Edge is a directed, labelled link From -> To between vertex IDs
type Edge struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Common errors
var (
	ErrTxClosed       = errors.New("transaction already committed or rolled back")
	ErrStoreClosed    = errors.New("graph store closed")
	ErrVertexNotFound = errors.New("vertex not found")
	ErrCorruptRecord  = errors.New("corrupt graph record")
	ErrTxFailed       = errors.New("transaction aborted by an earlier error")
)

// TransientError marks a store fault expected to clear on retry, such as a
// concurrent-modification conflict.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transient store error during %s", e.Op)
	}
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient classifies err as retryable for the backend that produced it
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, bolt.ErrTimeout) {
		return true
	}
	return neo4j.IsRetryable(err)
}
