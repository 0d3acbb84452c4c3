// Package dlq journals terminal serialization failures so operators can
// inspect and replay them.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/rohankatakam/graphinventory/internal/errors"
	"github.com/rohankatakam/graphinventory/internal/metrics"
)

// Entry represents a dead letter queue entry
type Entry struct {
	ID           int64      `db:"id" json:"id"`
	ResourceType string     `db:"resource_type" json:"resource_type"`
	ResourceKey  string     `db:"resource_key" json:"resource_key"`
	Operation    string     `db:"operation" json:"operation"`
	RequestID    string     `db:"request_id" json:"request_id"`
	ErrorCode    string     `db:"error_code" json:"error_code"`
	ErrorMessage string     `db:"error_message" json:"error_message"`
	Payload      string     `db:"payload" json:"payload,omitempty"`
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	LastRetryAt  *time.Time `db:"last_retry_at" json:"last_retry_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Failure is one terminal serialization failure to record
type Failure struct {
	ResourceType string
	ResourceKey  string
	Operation    string
	RequestID    string
	Err          error
	Payload      any // marshalled to JSON, typically the *models.Resource
}

// Stats contains DLQ statistics
type Stats struct {
	TotalEntries     int `db:"total"`
	RetryableEntries int `db:"retryable"`
	ExhaustedRetries int `db:"exhausted"`
}

// Queue manages failed serializations
type Queue struct {
	db      *sqlx.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Queue
type Option func(*Queue)

// WithMetrics counts enqueued failures
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

var schemas = map[string]string{
	"postgres": `
		CREATE TABLE IF NOT EXISTS serialization_failures (
			id             BIGSERIAL PRIMARY KEY,
			resource_type  TEXT NOT NULL,
			resource_key   TEXT NOT NULL,
			operation      TEXT NOT NULL,
			request_id     TEXT NOT NULL DEFAULT '',
			error_code     TEXT NOT NULL,
			error_message  TEXT NOT NULL,
			payload        TEXT NOT NULL DEFAULT '',
			retry_count    INTEGER NOT NULL DEFAULT 0,
			last_retry_at  TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (resource_type, resource_key)
		)`,
	"sqlite3": `
		CREATE TABLE IF NOT EXISTS serialization_failures (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_type  TEXT NOT NULL,
			resource_key   TEXT NOT NULL,
			operation      TEXT NOT NULL,
			request_id     TEXT NOT NULL DEFAULT '',
			error_code     TEXT NOT NULL,
			error_message  TEXT NOT NULL,
			payload        TEXT NOT NULL DEFAULT '',
			retry_count    INTEGER NOT NULL DEFAULT 0,
			last_retry_at  TIMESTAMP,
			created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (resource_type, resource_key)
		)`,
}

// Open connects with driver ("postgres" or "sqlite3") and creates the table
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Queue, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("unsupported dlq driver %q", driver)
	}

	if driver == "sqlite3" {
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to dlq database: %w", err)
	}
	if driver == "sqlite3" {
		// One writer at a time avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
		db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	}

	q := NewQueue(db, opts...)
	if err := q.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// ensureSQLiteDir creates the directory of a file DSN such as
// ~/.graphinventory/dlq.db or file:/var/lib/inv/dlq.db?cache=shared
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dlq directory %s: %w", dir, err)
	}
	return nil
}

// NewQueue creates a new DLQ manager over an open connection
func NewQueue(db *sqlx.DB, opts ...Option) *Queue {
	q := &Queue{
		db:     db,
		logger: slog.Default().With("component", "dlq"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Migrate creates the failures table if it does not exist
func (q *Queue) Migrate(ctx context.Context) error {
	schema, ok := schemas[q.db.DriverName()]
	if !ok {
		return fmt.Errorf("unsupported dlq driver %q", q.db.DriverName())
	}
	if _, err := q.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create dlq table: %w", err)
	}
	return nil
}

// Enqueue records a failure. If the resource already has an entry, its
// retry_count is incremented and the error replaced.
func (q *Queue) Enqueue(ctx context.Context, f Failure) error {
	if f.Err == nil {
		return fmt.Errorf("dlq: failure for %s %q has no error", f.ResourceType, f.ResourceKey)
	}

	payload := ""
	if f.Payload != nil {
		raw, err := json.Marshal(f.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payload = string(raw)
	}

	code := errors.CodeOf(f.Err)
	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		INSERT INTO serialization_failures
			(resource_type, resource_key, operation, request_id, error_code, error_message, payload, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (resource_type, resource_key) DO UPDATE
		SET retry_count = serialization_failures.retry_count + 1,
		    operation = excluded.operation,
		    request_id = excluded.request_id,
		    error_code = excluded.error_code,
		    error_message = excluded.error_message,
		    payload = excluded.payload,
		    updated_at = CURRENT_TIMESTAMP,
		    last_retry_at = CURRENT_TIMESTAMP
	`), f.ResourceType, f.ResourceKey, f.Operation, f.RequestID, code, f.Err.Error(), payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue failure to DLQ: %w", err)
	}

	q.metrics.IncDLQRecord()
	q.logger.Warn("serialization failure enqueued to DLQ",
		"resource_type", f.ResourceType,
		"resource_key", f.ResourceKey,
		"operation", f.Operation,
		"code", code,
		"error", f.Err.Error(),
	)
	return nil
}

// List returns up to limit entries, most recently updated first
func (q *Queue) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []Entry
	err := q.db.SelectContext(ctx, &entries, q.db.Rebind(`
		SELECT id, resource_type, resource_key, operation, request_id, error_code, error_message,
		       payload, retry_count, last_retry_at, created_at, updated_at
		FROM serialization_failures
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query DLQ: %w", err)
	}
	return entries, nil
}

// Get returns the entry for one resource, nil when there is none
func (q *Queue) Get(ctx context.Context, resourceType, resourceKey string) (*Entry, error) {
	var entries []Entry
	err := q.db.SelectContext(ctx, &entries, q.db.Rebind(`
		SELECT id, resource_type, resource_key, operation, request_id, error_code, error_message,
		       payload, retry_count, last_retry_at, created_at, updated_at
		FROM serialization_failures
		WHERE resource_type = ? AND resource_key = ?
	`), resourceType, resourceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query DLQ entry: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Resolve removes an entry after the failure has been handled. It reports
// whether an entry was removed.
func (q *Queue) Resolve(ctx context.Context, id int64) (bool, error) {
	result, err := q.db.ExecContext(ctx, q.db.Rebind(`DELETE FROM serialization_failures WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete DLQ entry: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		q.logger.Info("failure resolved and removed from DLQ", "id", id)
	}
	return rows > 0, nil
}

// ResolveResource removes the entry of a resource, e.g. after a later
// successful write of it
func (q *Queue) ResolveResource(ctx context.Context, resourceType, resourceKey string) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		DELETE FROM serialization_failures WHERE resource_type = ? AND resource_key = ?
	`), resourceType, resourceKey)
	if err != nil {
		return fmt.Errorf("failed to delete DLQ entry: %w", err)
	}
	return nil
}

// GetStats counts entries; those failing maxRetries times or more are exhausted
func (q *Queue) GetStats(ctx context.Context, maxRetries int) (*Stats, error) {
	var stats Stats
	err := q.db.GetContext(ctx, &stats, q.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN retry_count >= ? THEN 1 ELSE 0 END), 0) AS exhausted,
			COALESCE(SUM(CASE WHEN retry_count < ? THEN 1 ELSE 0 END), 0) AS retryable
		FROM serialization_failures
	`), maxRetries, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ stats: %w", err)
	}
	return &stats, nil
}

// PurgeOld removes DLQ entries created before now minus olderThan
func (q *Queue) PurgeOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := q.db.ExecContext(ctx, q.db.Rebind(`
		DELETE FROM serialization_failures WHERE created_at < ?
	`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old DLQ entries: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		q.logger.Info("purged old DLQ entries",
			"count", rows,
			"older_than", olderThan.String(),
		)
	}
	return int(rows), nil
}

// Close closes the database connection
func (q *Queue) Close() error {
	return q.db.Close()
}
