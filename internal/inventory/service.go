// Package inventory owns the request-level transaction around the
// serializer: gate on the cached store status, open a transaction, apply,
// commit or roll back, and journal terminal failures.
package inventory

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/rohankatakam/graphinventory/internal/availability"
	"github.com/rohankatakam/graphinventory/internal/dlq"
	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/graph"
	"github.com/rohankatakam/graphinventory/internal/models"
	"github.com/rohankatakam/graphinventory/internal/query"
	"github.com/rohankatakam/graphinventory/internal/serializer"
)

// FailureRecorder journals failures; *dlq.Queue implements it
type FailureRecorder interface {
	Enqueue(ctx context.Context, f dlq.Failure) error
	ResolveResource(ctx context.Context, resourceType, resourceKey string) error
}

// Service applies resource requests, one graph transaction per call
type Service struct {
	store         graph.Store
	serializer    *serializer.Serializer
	checker       *availability.Checker
	recorder      FailureRecorder
	schemaVersion string
	sourceOfTruth string
	logger        *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithChecker refuses requests while the cached store status is Unavailable
func WithChecker(c *availability.Checker) Option {
	return func(s *Service) { s.checker = c }
}

// WithFailureRecorder journals server-side failures
func WithFailureRecorder(r FailureRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithSchemaVersion sets the version stamped on written vertices
func WithSchemaVersion(v string) Option {
	return func(s *Service) { s.schemaVersion = v }
}

// WithSourceOfTruth sets last_mod_source for requests that do not carry one
func WithSourceOfTruth(src string) Option {
	return func(s *Service) { s.sourceOfTruth = src }
}

// WithLogger replaces the component logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service over store. ser may be nil for a default serializer.
func NewService(store graph.Store, ser *serializer.Serializer, opts ...Option) *Service {
	if ser == nil {
		ser = serializer.New()
	}
	s := &Service{
		store:      store,
		serializer: ser,
		logger:     slog.Default().With("component", "inventory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply serializes one request in its own transaction and commits it
func (s *Service) Apply(ctx context.Context, req serializer.Request) (*models.Resource, error) {
	out, err := s.run(ctx, graph.OpSerialize, []serializer.Request{req})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ApplyAll serializes reqs in one transaction; nothing is committed unless
// every request succeeds
func (s *Service) ApplyAll(ctx context.Context, reqs []serializer.Request) ([]*models.Resource, error) {
	if len(reqs) == 0 {
		return nil, errors.ValidationErrorf("no requests to apply")
	}
	return s.run(ctx, graph.OpBulkApply, reqs)
}

// Delete removes the resource addressed by desc
func (s *Service) Delete(ctx context.Context, desc query.Descriptor, requestID string) (*models.Resource, error) {
	return s.Apply(ctx, serializer.Request{
		Descriptor: desc,
		Context:    serializer.OpContext{Operation: serializer.Delete, RequestID: requestID},
	})
}

func (s *Service) run(ctx context.Context, operation string, reqs []serializer.Request) ([]*models.Resource, error) {
	if s.checker != nil && s.checker.IsAvailable(ctx, availability.Cached) == availability.StatusUnavailable {
		return nil, errors.StoreUnavailable("graph store is unavailable; request refused without opening a transaction")
	}

	reqs = append([]serializer.Request(nil), reqs...)
	requestID := reqs[0].Context.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	for i := range reqs {
		if reqs[i].Context.RequestID == "" {
			reqs[i].Context.RequestID = requestID
		}
		if reqs[i].Context.SourceOfTruth == "" {
			reqs[i].Context.SourceOfTruth = s.sourceOfTruth
		}
	}

	logger := s.logger.With("request_id", requestID, "requests", len(reqs))
	txConfig := graph.GetConfigForOperation(operation).WithCustomMetadata("request_id", requestID)
	ctx = graph.WithTransactionConfig(ctx, txConfig)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		err = errors.DatabaseErrorf(err, "failed to begin transaction")
		s.record(ctx, reqs, err)
		return nil, err
	}

	var out []*models.Resource
	if len(reqs) == 1 {
		var res *models.Resource
		res, err = s.serializer.SerializeToDb(ctx, s.schemaVersion, tx, reqs[0].Descriptor, reqs[0].Resource, reqs[0].Context)
		out = []*models.Resource{res}
	} else {
		out, err = s.serializer.SerializeAll(ctx, s.schemaVersion, tx, reqs)
	}
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Warn("rollback failed", "tx_id", tx.ID(), "error", rbErr)
		}
		s.record(ctx, reqs, err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		// Backends that end the transaction on a failed commit report ErrTxClosed here
		if rbErr := tx.Rollback(ctx); rbErr != nil && !stderrors.Is(rbErr, graph.ErrTxClosed) {
			logger.Warn("rollback after failed commit failed", "tx_id", tx.ID(), "error", rbErr)
		}
		err = errors.DatabaseErrorf(err, "failed to commit transaction %s", tx.ID())
		s.record(ctx, reqs, err)
		return nil, err
	}

	logger.Info("requests committed", "tx_id", tx.ID())
	s.clear(ctx, reqs)
	return out, nil
}

// record journals err against every request of the failed transaction.
// Client errors (4xx) are the caller's to fix and are not journalled.
func (s *Service) record(ctx context.Context, reqs []serializer.Request, err error) {
	if s.recorder == nil || errors.StatusOf(err) < http.StatusInternalServerError {
		return
	}
	for _, req := range reqs {
		resourceType, key := identify(req)
		f := dlq.Failure{
			ResourceType: resourceType,
			ResourceKey:  key,
			Operation:    string(req.Context.Operation),
			RequestID:    req.Context.RequestID,
			Err:          err,
		}
		if req.Resource != nil {
			f.Payload = req.Resource
		}
		if rerr := s.recorder.Enqueue(ctx, f); rerr != nil {
			s.logger.Error("failed to journal serialization failure",
				"resource_type", resourceType,
				"resource_key", key,
				"error", rerr)
		}
	}
}

// clear drops journal entries of resources that have now been written
func (s *Service) clear(ctx context.Context, reqs []serializer.Request) {
	if s.recorder == nil {
		return
	}
	for _, req := range reqs {
		resourceType, key := identify(req)
		if err := s.recorder.ResolveResource(ctx, resourceType, key); err != nil {
			s.logger.Warn("failed to clear journal entry",
				"resource_type", resourceType,
				"resource_key", key,
				"error", err)
		}
	}
}

func identify(req serializer.Request) (string, string) {
	if req.Resource != nil {
		return req.Resource.Type, req.Resource.Key
	}
	return req.Descriptor.ResourceType(), req.Descriptor.Key()
}
