package graph

import (
	"context"
	"fmt"

	"github.com/rohankatakam/graphinventory/internal/config"
)

// Open creates the store selected by cfg.Backend
func Open(ctx context.Context, cfg config.GraphConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendNeo4j:
		opts := DefaultNeo4jOptions()
		if cfg.MaxConnectionPoolSize > 0 {
			opts.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		return NewNeo4jStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, opts)
	case config.BackendBolt:
		return OpenBoltStore(cfg.BoltPath, cfg.BoltLockTimeout)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.Backend)
	}
}
