package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TransactionConfig defines timeout and metadata for transactions.
//
// Transaction metadata is logged by Neo4j and visible in query.log, which
// lets operators tell serializer writes from health probes.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// Operation names understood by GetConfigForOperation
const (
	OpSerialize   = "serialize"
	OpBulkApply   = "bulk_apply"
	OpQuery       = "query"
	OpHealthCheck = "health_check"
)

// DefaultTransactionConfigs returns recommended configs per operation type
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		// One resource mutation per request
		OpSerialize: {
			Timeout: 30 * time.Second,
			Metadata: map[string]any{
				"operation": OpSerialize,
				"type":      "write",
			},
		},

		// Multi-resource requests committed as a unit
		OpBulkApply: {
			Timeout: 3 * time.Minute,
			Metadata: map[string]any{
				"operation": OpBulkApply,
				"type":      "write",
			},
		},

		OpQuery: {
			Timeout: 30 * time.Second,
			Metadata: map[string]any{
				"operation": OpQuery,
				"type":      "read",
			},
		},

		// Health checks must be fast
		OpHealthCheck: {
			Timeout: 5 * time.Second,
			Metadata: map[string]any{
				"operation": OpHealthCheck,
				"type":      "read",
			},
		},
	}
}

// AsNeo4jConfig converts to Neo4j transaction config functions
// Use with BeginTransaction or ExecuteRead/ExecuteWrite
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	configs := []func(*neo4j.TransactionConfig){}

	if tc.Timeout > 0 {
		configs = append(configs, neo4j.WithTxTimeout(tc.Timeout))
	}

	if len(tc.Metadata) > 0 {
		configs = append(configs, neo4j.WithTxMetadata(tc.Metadata))
	}

	return configs
}

// GetConfigForOperation retrieves the appropriate transaction config
// Returns default config if operation not found
func GetConfigForOperation(operation string) TransactionConfig {
	configs := DefaultTransactionConfigs()
	if config, ok := configs[operation]; ok {
		return config
	}

	return TransactionConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"type":      "unknown",
		},
	}
}

// WithCustomMetadata returns a copy with one extra metadata entry,
// e.g. the request ID of the flow that owns the transaction
func (tc TransactionConfig) WithCustomMetadata(key string, value any) TransactionConfig {
	newConfig := TransactionConfig{
		Timeout:  tc.Timeout,
		Metadata: make(map[string]any, len(tc.Metadata)+1),
	}
	for k, v := range tc.Metadata {
		newConfig.Metadata[k] = v
	}
	newConfig.Metadata[key] = value
	return newConfig
}

// WithTimeout creates a config with a custom timeout
func (tc TransactionConfig) WithTimeout(timeout time.Duration) TransactionConfig {
	return TransactionConfig{
		Timeout:  timeout,
		Metadata: tc.Metadata,
	}
}

type txConfigKey struct{}

// WithTransactionConfig attaches the config Begin should use for the
// transaction opened with ctx
func WithTransactionConfig(ctx context.Context, tc TransactionConfig) context.Context {
	return context.WithValue(ctx, txConfigKey{}, tc)
}

// transactionConfigFrom returns the attached config or the one for fallback
func transactionConfigFrom(ctx context.Context, fallback string) TransactionConfig {
	if tc, ok := ctx.Value(txConfigKey{}).(TransactionConfig); ok {
		return tc
	}
	return GetConfigForOperation(fallback)
}
