package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/graphinventory/internal/errors"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nwarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Err converts a failed result into a typed config error, nil otherwise
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigErrorf("%s", strings.TrimRight(vr.Error(), "\n"))
}

// Validate checks every section
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateGraph(result)
	c.validateSerializer(result)
	c.validateAvailability(result)
	c.validateServer(result)
	c.validateDLQ(result)
	c.validateLogging(result)

	return result
}

func (c *Config) validateGraph(result *ValidationResult) {
	switch c.Graph.Backend {
	case BackendNeo4j:
		if c.Graph.Neo4jURI == "" {
			result.AddError("graph.neo4j_uri is required for the neo4j backend")
		} else if u, err := url.Parse(c.Graph.Neo4jURI); err != nil {
			result.AddError("graph.neo4j_uri is not a valid URI: %v", err)
		} else if !isNeo4jScheme(u.Scheme) {
			result.AddError("graph.neo4j_uri scheme %q not supported (use bolt://, neo4j:// or their +s variants)", u.Scheme)
		}
		if c.Graph.Neo4jUser == "" {
			result.AddError("graph.neo4j_user is required for the neo4j backend")
		}
		if c.Graph.Neo4jPassword == "" {
			result.AddError("graph.neo4j_password is required for the neo4j backend (set NEO4J_PASSWORD)")
		}
		if c.Graph.MaxConnectionPoolSize <= 0 {
			result.AddWarning("graph.max_connection_pool_size <= 0, driver default will be used")
		}
	case BackendBolt:
		if c.Graph.BoltPath == "" {
			result.AddError("graph.bolt_path is required for the bolt backend")
		}
	case BackendMemory:
		result.AddWarning("memory backend keeps the graph in process; data is lost on exit")
	default:
		result.AddError("graph.backend %q unknown (neo4j, bolt, memory)", c.Graph.Backend)
	}
}

func isNeo4jScheme(scheme string) bool {
	switch scheme {
	case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
		return true
	}
	return false
}

func (c *Config) validateSerializer(result *ValidationResult) {
	if c.Serializer.MaxAttempts < 1 {
		result.AddError("serializer.max_attempts must be at least 1, got %d", c.Serializer.MaxAttempts)
	}
	if c.Serializer.RetryDelay < 0 {
		result.AddError("serializer.retry_delay must not be negative")
	}
	if c.Serializer.SchemaVersion == "" {
		result.AddError("serializer.schema_version is required")
	}
}

func (c *Config) validateAvailability(result *ValidationResult) {
	if c.Availability.ProbeTimeout <= 0 {
		result.AddError("availability.probe_timeout must be positive")
	}
	if c.Availability.RefreshInterval < 0 {
		result.AddError("availability.refresh_interval must not be negative")
	} else if c.Availability.RefreshInterval == 0 {
		result.AddWarning("availability.refresh_interval is 0, the cached status is only updated by explicit probes")
	}
}

func (c *Config) validateServer(result *ValidationResult) {
	if c.Server.ListenAddr == "" {
		result.AddError("server.listen_addr is required")
	}
	if c.Server.ActualProbeRate <= 0 {
		result.AddError("server.actual_probe_rate must be positive")
	}
	if c.Server.ActualProbeBurst < 1 {
		result.AddError("server.actual_probe_burst must be at least 1")
	}
}

func (c *Config) validateDLQ(result *ValidationResult) {
	if !c.DLQ.Enabled {
		return
	}
	switch c.DLQ.Driver {
	case "postgres", "sqlite3":
	default:
		result.AddError("dlq.driver %q unknown (postgres, sqlite3)", c.DLQ.Driver)
	}
	if c.DLQ.DSN == "" {
		result.AddError("dlq.dsn is required when the dlq is enabled")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		result.AddError("logging.level %q unknown (debug, info, warn, error)", c.Logging.Level)
	}
}
