// Package serializer applies resource mutations to an open graph transaction.
//
// Only parent resolution of dependent resources is retried: it is the step
// that races with concurrent writers creating the parent. Store errors while
// mutating are terminal on the first occurrence, transient or not. The
// serializer never commits or rolls back; the transaction owner does.
//
// Retrying inside one transaction only helps where the backend keeps the
// transaction usable after a failed read, as the memory and bolt stores do.
// Neo4j aborts an explicit transaction on its first error, so there the
// second attempt fails with graph.ErrTxFailed, which is not transient, and
// the request ends as a database error rather than MaxRetriesExceeded.
package serializer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/graph"
	"github.com/rohankatakam/graphinventory/internal/metrics"
	"github.com/rohankatakam/graphinventory/internal/models"
	"github.com/rohankatakam/graphinventory/internal/query"
)

// Operation is the kind of mutation requested
type Operation string

const (
	Create Operation = "create"
	Update Operation = "update"
	Delete Operation = "delete"
)

// ParseOperation accepts the lower-case operation names
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case Create, Update, Delete:
		return op, nil
	}
	return "", errors.ValidationErrorf("unknown operation %q (create, update, delete)", s)
}

// OpContext carries per-request metadata
type OpContext struct {
	Operation     Operation
	RequestID     string
	SourceOfTruth string // stamped as last_mod_source
}

// Request is one entry of a SerializeAll batch
type Request struct {
	Descriptor query.Descriptor
	Resource   *models.Resource
	Context    OpContext
}

// Serializer maps resources onto graph mutations. Safe for concurrent use;
// each call works only on the transaction it is given.
type Serializer struct {
	maxAttempts int
	retryDelay  time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a serializer with DefaultMaxAttempts and no retry delay
func New(opts ...Option) *Serializer {
	s := &Serializer{
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default().With("component", "serializer"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAttempts returns the configured parent evaluation bound
func (s *Serializer) MaxAttempts() int {
	return s.maxAttempts
}

// SerializeToDb applies one create, update or delete to tx. version is the
// schema version stamped on written vertices. res may be nil for deletes.
// The returned resource carries the store-assigned ID, the parent ID for
// dependent resources and the new resource version.
func (s *Serializer) SerializeToDb(
	ctx context.Context,
	version string,
	tx graph.Tx,
	desc query.Descriptor,
	res *models.Resource,
	opCtx OpContext,
) (*models.Resource, error) {
	start := time.Now()
	logger := s.logger.With("operation", string(opCtx.Operation), "request_id", opCtx.RequestID)

	out, err := s.serialize(ctx, logger, version, tx, desc, res, opCtx)
	if err != nil {
		s.metrics.ObserveSerialize(string(opCtx.Operation), "failure")
		s.metrics.ObserveFailure(errors.CodeOf(err))
		logger.Warn("serialization failed",
			"target", desc.String(),
			"code", errors.CodeOf(err),
			"error", err)
		return nil, err
	}

	s.metrics.ObserveSerialize(string(opCtx.Operation), "success")
	logger.Debug("serialization applied",
		"resource_type", out.Type,
		"resource_key", out.Key,
		"id", out.ID,
		"resource_version", out.ResourceVersion,
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (s *Serializer) serialize(
	ctx context.Context,
	logger *slog.Logger,
	version string,
	tx graph.Tx,
	desc query.Descriptor,
	res *models.Resource,
	opCtx OpContext,
) (*models.Resource, error) {
	if tx == nil {
		return nil, errors.ValidationErrorf("transaction is required")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseOperation(string(opCtx.Operation)); err != nil {
		return nil, err
	}
	if res == nil && opCtx.Operation != Delete {
		return nil, errors.ValidationErrorf("resource body is required for %s", opCtx.Operation)
	}
	if res != nil {
		if err := res.Validate(); err != nil {
			return nil, err
		}
		if label := desc.ResourceType(); label != "" && label != res.Type {
			return nil, errors.ValidationErrorf("resource type %q does not match descriptor target %q", res.Type, label)
		}
	}

	resourceType, key := identify(desc, res)

	var parent *graph.Vertex
	if desc.Dependent {
		p, err := s.resolveParent(ctx, logger, tx, desc, resourceType, key)
		if err != nil {
			return nil, err
		}
		parent = &p
	}

	m := mutation{
		s:            s,
		tx:           tx,
		desc:         desc,
		res:          res,
		parent:       parent,
		version:      version,
		opCtx:        opCtx,
		resourceType: resourceType,
		key:          key,
	}
	switch opCtx.Operation {
	case Create:
		return m.create(ctx)
	case Update:
		return m.update(ctx)
	default:
		return m.remove(ctx)
	}
}

// resolveParent evaluates the parent traversal, retrying transient store
// errors up to maxAttempts evaluations in total.
func (s *Serializer) resolveParent(
	ctx context.Context,
	logger *slog.Logger,
	tx graph.Tx,
	desc query.Descriptor,
	resourceType, key string,
) (graph.Vertex, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		parents, err := tx.Evaluate(ctx, desc.Parent)
		if err == nil {
			s.metrics.ObserveParentResolution(attempt)
			switch len(parents) {
			case 0:
				return graph.Vertex{}, errors.ParentNotFound(resourceType, key).
					WithContext("parent", desc.Parent.String())
			case 1:
				if attempt > 1 {
					logger.Info("parent resolved after transient failures",
						"resource_type", resourceType,
						"resource_key", key,
						"attempts", attempt)
				}
				return parents[0], nil
			default:
				return graph.Vertex{}, errors.AmbiguousParent(resourceType, key, len(parents)).
					WithContext("parent", desc.Parent.String())
			}
		}

		if !graph.IsTransient(err) {
			return graph.Vertex{}, errors.DatabaseErrorf(err, "failed to resolve parent of %s %q", resourceType, key)
		}

		lastErr = err
		s.metrics.IncTransientRetry()
		logger.Warn("transient error resolving parent",
			"resource_type", resourceType,
			"resource_key", key,
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"error", err)

		if attempt < s.maxAttempts && s.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return graph.Vertex{}, errors.DatabaseErrorf(ctx.Err(), "parent resolution of %s %q cancelled", resourceType, key)
			case <-time.After(s.retryDelay):
			}
		}
	}

	s.metrics.ObserveParentResolution(s.maxAttempts)
	return graph.Vertex{}, errors.MaxRetriesExceeded(resourceType, key, s.maxAttempts, lastErr)
}

// SerializeAll applies reqs in order to one transaction and stops at the
// first failure. The caller commits on success and rolls back otherwise, so
// the batch lands as a unit.
func (s *Serializer) SerializeAll(ctx context.Context, version string, tx graph.Tx, reqs []Request) ([]*models.Resource, error) {
	out := make([]*models.Resource, 0, len(reqs))
	for i, req := range reqs {
		res, err := s.SerializeToDb(ctx, version, tx, req.Descriptor, req.Resource, req.Context)
		if err != nil {
			if e, ok := errors.As(err); ok {
				e.WithContext("request_index", i)
			}
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// nextResourceVersion returns the current Unix millisecond, bumped past
// stored so versions of one vertex always increase
func (s *Serializer) nextResourceVersion(stored string) string {
	v := s.now().UnixMilli()
	if prev, err := strconv.ParseInt(stored, 10, 64); err == nil && v <= prev {
		v = prev + 1
	}
	return strconv.FormatInt(v, 10)
}

// identify names the resource for errors and logs; deletes without a body
// fall back to the descriptor's target step
func identify(desc query.Descriptor, res *models.Resource) (string, string) {
	if res != nil {
		return res.Type, res.Key
	}
	return desc.ResourceType(), desc.Key()
}
