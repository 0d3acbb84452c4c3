package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore implements Store over the Neo4j driver with explicit
// transactions, one session per graph transaction.
// Security: NEVER hardcode credentials; they come from config/env.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// Neo4jOptions tunes the driver connection pool
type Neo4jOptions struct {
	MaxConnectionPoolSize        int
	ConnectionAcquisitionTimeout time.Duration
	SocketConnectTimeout         time.Duration
}

// DefaultNeo4jOptions mirrors the pool settings used for medium workloads
func DefaultNeo4jOptions() Neo4jOptions {
	return Neo4jOptions{
		MaxConnectionPoolSize:        50,
		ConnectionAcquisitionTimeout: 60 * time.Second,
		SocketConnectTimeout:         5 * time.Second,
	}
}

// NewNeo4jStore creates the driver and verifies connectivity (fail fast on startup)
func NewNeo4jStore(ctx context.Context, uri, user, password, database string, opts Neo4jOptions) (*Neo4jStore, error) {
	if uri == "" || user == "" || password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", uri, user)
	}
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(user, password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = opts.MaxConnectionPoolSize
			config.ConnectionAcquisitionTimeout = opts.ConnectionAcquisitionTimeout
			config.MaxConnectionLifetime = 3600 * time.Second
			config.ConnectionLivenessCheckTimeout = 5 * time.Second
			config.SocketConnectTimeout = opts.SocketConnectTimeout
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	store := NewNeo4jStoreFromDriver(driver, database)
	store.logger.Info("neo4j store connected",
		"uri", uri,
		"user", user,
		"database", database,
		"max_pool_size", opts.MaxConnectionPoolSize)

	return store, nil
}

// NewNeo4jStoreFromDriver wraps an existing driver without probing it
func NewNeo4jStoreFromDriver(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{
		driver:   driver,
		logger:   slog.Default().With("component", "neo4j"),
		database: database,
	}
}

func (s *Neo4jStore) Name() string { return "neo4j" }

// Begin opens a write session and an explicit transaction on it. The
// transaction config attached with WithTransactionConfig wins over the
// serialize default.
func (s *Neo4jStore) Begin(ctx context.Context) (Tx, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})

	id := uuid.NewString()
	txConfig := transactionConfigFrom(ctx, OpSerialize).WithCustomMetadata("tx_id", id)

	tx, err := session.BeginTransaction(ctx, txConfig.AsNeo4jConfig()...)
	if err != nil {
		session.Close(ctx)
		return nil, fmt.Errorf("failed to begin neo4j transaction: %w", err)
	}

	return &neo4jTx{
		id:      id,
		session: session,
		tx:      tx,
		logger:  s.logger,
	}, nil
}

// Ping verifies a connection can be established and authenticated
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	s.logger.Info("neo4j store closed")
	return nil
}
