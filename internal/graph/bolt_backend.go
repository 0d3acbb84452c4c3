package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	verticesBucket = []byte("vertices")
	edgesBucket    = []byte("edges")
	edgeIndex      = []byte("edge_index") // label|from|to -> edge id
)

// BoltStore keeps the graph in a single bbolt file. A graph transaction holds
// the bbolt write lock from Begin to Commit/Rollback, so writers are
// serialized while Ping and other readers proceed.
type BoltStore struct {
	db     *bolt.DB
	path   string
	logger *slog.Logger
}

// OpenBoltStore opens (or creates) the store file. timeout bounds the wait
// for the file lock held by another process.
func OpenBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bolt directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{verticesBucket, edgesBucket, edgeIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bolt buckets: %w", err)
	}

	logger := slog.Default().With("component", "bolt")
	logger.Info("bolt store opened", "path", path)

	return &BoltStore{db: db, path: path, logger: logger}, nil
}

func (b *BoltStore) Name() string { return "bolt" }

func (b *BoltStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := b.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("failed to begin bolt transaction: %w", err)
	}
	return &boltTx{id: uuid.NewString(), tx: tx}, nil
}

// Ping opens a read transaction and checks the vertex bucket exists
func (b *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(verticesBucket) == nil {
			return fmt.Errorf("bolt store %s: vertices bucket missing", b.path)
		}
		return nil
	})
}

func (b *BoltStore) Close(ctx context.Context) error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close bolt store: %w", err)
	}
	b.logger.Info("bolt store closed", "path", b.path)
	return nil
}

type boltTx struct {
	id   string
	tx   *bolt.Tx
	done bool
}

func (t *boltTx) ID() string { return t.id }

// boltView adapts a bbolt transaction to graphView; it reads the
// transaction's own uncommitted writes.
type boltView struct {
	tx *bolt.Tx
}

func (v boltView) allVertices() ([]Vertex, error) {
	var out []Vertex
	err := v.tx.Bucket(verticesBucket).ForEach(func(k, raw []byte) error {
		vx, err := decodeVertex(raw)
		if err != nil {
			return fmt.Errorf("vertex %s: %w: %v", k, ErrCorruptRecord, err)
		}
		out = append(out, vx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan vertices: %w", err)
	}
	return out, nil
}

func (v boltView) vertexByID(id string) (Vertex, bool, error) {
	raw := v.tx.Bucket(verticesBucket).Get([]byte(id))
	if raw == nil {
		return Vertex{}, false, nil
	}
	vx, err := decodeVertex(raw)
	if err != nil {
		return Vertex{}, false, fmt.Errorf("vertex %s: %w: %v", id, ErrCorruptRecord, err)
	}
	return vx, true, nil
}

func (v boltView) allEdges() ([]Edge, error) {
	var out []Edge
	err := v.tx.Bucket(edgesBucket).ForEach(func(k, raw []byte) error {
		var e Edge
		if err := decodeJSON(raw, &e); err != nil {
			return fmt.Errorf("edge %s: %w: %v", k, ErrCorruptRecord, err)
		}
		e.Properties = normalizeProps(e.Properties)
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan edges: %w", err)
	}
	return out, nil
}

func (t *boltTx) Evaluate(ctx context.Context, tr Traversal) ([]Vertex, error) {
	if t.done {
		return nil, ErrTxClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return evaluateView(boltView{tx: t.tx}, tr)
}

func (t *boltTx) AddVertex(ctx context.Context, v Vertex) (Vertex, error) {
	if t.done {
		return Vertex{}, ErrTxClosed
	}
	if v.Label == "" {
		return Vertex{}, fmt.Errorf("vertex label required")
	}
	v.ID = uuid.NewString()
	v.Properties = normalizeProps(v.Properties)
	if err := t.putVertex(v); err != nil {
		return Vertex{}, err
	}
	return v, nil
}

func (t *boltTx) putVertex(v Vertex) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode vertex %s: %w", v.ID, err)
	}
	return t.tx.Bucket(verticesBucket).Put([]byte(v.ID), raw)
}

func (t *boltTx) UpdateVertex(ctx context.Context, id string, props map[string]any) (Vertex, error) {
	if t.done {
		return Vertex{}, ErrTxClosed
	}
	v, ok, err := boltView{tx: t.tx}.vertexByID(id)
	if err != nil {
		return Vertex{}, err
	}
	if !ok {
		return Vertex{}, fmt.Errorf("update %s: %w", id, ErrVertexNotFound)
	}
	v = mergeVertex(v, props)
	if err := t.putVertex(v); err != nil {
		return Vertex{}, err
	}
	return v, nil
}

func (t *boltTx) RemoveVertex(ctx context.Context, id string) error {
	if t.done {
		return ErrTxClosed
	}
	vb := t.tx.Bucket(verticesBucket)
	if vb.Get([]byte(id)) == nil {
		return fmt.Errorf("remove %s: %w", id, ErrVertexNotFound)
	}

	// Collect first; bbolt cursors must not be mutated mid-iteration.
	edges, err := boltView{tx: t.tx}.allEdges()
	if err != nil {
		return err
	}
	var doomed []Edge
	for _, e := range edges {
		if e.From == id || e.To == id {
			doomed = append(doomed, e)
		}
	}
	eb := t.tx.Bucket(edgesBucket)
	ib := t.tx.Bucket(edgeIndex)
	for _, e := range doomed {
		if err := eb.Delete([]byte(e.ID)); err != nil {
			return err
		}
		if err := ib.Delete(edgeIndexKey(e.Label, e.From, e.To)); err != nil {
			return err
		}
	}
	return vb.Delete([]byte(id))
}

func (t *boltTx) AddEdge(ctx context.Context, e Edge) (Edge, error) {
	if t.done {
		return Edge{}, ErrTxClosed
	}
	if e.Label == "" {
		return Edge{}, fmt.Errorf("edge label required")
	}
	vb := t.tx.Bucket(verticesBucket)
	if vb.Get([]byte(e.From)) == nil {
		return Edge{}, fmt.Errorf("edge %s from %s: %w", e.Label, e.From, ErrVertexNotFound)
	}
	if vb.Get([]byte(e.To)) == nil {
		return Edge{}, fmt.Errorf("edge %s to %s: %w", e.Label, e.To, ErrVertexNotFound)
	}

	ib := t.tx.Bucket(edgeIndex)
	eb := t.tx.Bucket(edgesBucket)
	key := edgeIndexKey(e.Label, e.From, e.To)
	if existingID := ib.Get(key); existingID != nil {
		var existing Edge
		if err := decodeJSON(eb.Get(existingID), &existing); err != nil {
			return Edge{}, fmt.Errorf("failed to decode edge %s: %w", existingID, err)
		}
		return existing, nil
	}

	e.ID = uuid.NewString()
	e.Properties = normalizeProps(e.Properties)
	raw, err := json.Marshal(e)
	if err != nil {
		return Edge{}, fmt.Errorf("failed to encode edge: %w", err)
	}
	if err := eb.Put([]byte(e.ID), raw); err != nil {
		return Edge{}, err
	}
	if err := ib.Put(key, []byte(e.ID)); err != nil {
		return Edge{}, err
	}
	return e, nil
}

func (t *boltTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("bolt commit failed: %w", err)
	}
	return nil
}

func (t *boltTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	return t.tx.Rollback()
}

func edgeIndexKey(label, from, to string) []byte {
	return []byte(label + "|" + from + "|" + to)
}

func decodeVertex(raw []byte) (Vertex, error) {
	var v Vertex
	if err := decodeJSON(raw, &v); err != nil {
		return Vertex{}, err
	}
	v.Properties = normalizeProps(v.Properties)
	return v, nil
}

func decodeJSON(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}
