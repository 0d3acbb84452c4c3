package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())
	assert.NoError(t, result.Err())
	assert.Equal(t, 3, cfg.Serializer.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Availability.ProbeTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
graph:
  backend: memory
serializer:
  max_attempts: 5
  retry_delay: 250ms
availability:
  refresh_interval: 10s
dlq:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Graph.Backend)
	assert.Equal(t, 5, cfg.Serializer.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Serializer.RetryDelay)
	assert.Equal(t, 10*time.Second, cfg.Availability.RefreshInterval)
	assert.False(t, cfg.DLQ.Enabled)

	// Untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Availability.ProbeTimeout)
	assert.Equal(t, "v1", cfg.Serializer.SchemaVersion)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serializer:\n  max_attempts: 5\n"), 0644))

	t.Setenv("SERIALIZER_MAX_ATTEMPTS", "7")
	t.Setenv("SERIALIZER_RETRY_DELAY_MS", "40")
	t.Setenv("GRAPH_BACKEND", "NEO4J")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("AVAILABILITY_REFRESH_SECONDS", "15")
	t.Setenv("INVENTORY_SERVER_LISTEN_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Serializer.MaxAttempts)
	assert.Equal(t, 40*time.Millisecond, cfg.Serializer.RetryDelay)
	assert.Equal(t, BackendNeo4j, cfg.Graph.Backend)
	assert.Equal(t, "secret", cfg.Graph.Neo4jPassword)
	assert.Equal(t, 15*time.Second, cfg.Availability.RefreshInterval)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Graph.Backend = BackendMemory
	cfg.Serializer.MaxAttempts = 4
	cfg.Serializer.RetryDelay = 20 * time.Millisecond
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, loaded.Graph.Backend)
	assert.Equal(t, 4, loaded.Serializer.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, loaded.Serializer.RetryDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Graph.Backend = "dynamo" },
			wantErr: true,
		},
		{
			name: "neo4j without password",
			mutate: func(c *Config) {
				c.Graph.Backend = BackendNeo4j
				c.Graph.Neo4jPassword = ""
			},
			wantErr: true,
		},
		{
			name: "neo4j with http scheme",
			mutate: func(c *Config) {
				c.Graph.Backend = BackendNeo4j
				c.Graph.Neo4jURI = "http://localhost:7474"
				c.Graph.Neo4jPassword = "pw"
			},
			wantErr: true,
		},
		{
			name: "neo4j complete",
			mutate: func(c *Config) {
				c.Graph.Backend = BackendNeo4j
				c.Graph.Neo4jPassword = "pw"
			},
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Serializer.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "negative probe timeout",
			mutate:  func(c *Config) { c.Availability.ProbeTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "dlq driver unknown",
			mutate:  func(c *Config) { c.DLQ.Driver = "mysql" },
			wantErr: true,
		},
		{
			name: "dlq disabled ignores driver",
			mutate: func(c *Config) {
				c.DLQ.Enabled = false
				c.DLQ.Driver = "mysql"
			},
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.Validate()
			if tt.wantErr {
				assert.True(t, result.HasErrors())
				assert.Error(t, result.Err())
			} else {
				assert.False(t, result.HasErrors(), result.Error())
			}
		})
	}
}

func TestValidateWarnsOnMemoryBackend(t *testing.T) {
	cfg := Default()
	cfg.Graph.Backend = BackendMemory
	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	assert.NotEmpty(t, result.Warnings)
}

func TestLoadExpandsHomePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
graph:
  bolt_path: ~/inv/graph.db
dlq:
  driver: sqlite3
  dsn: ~/inv/dlq.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "inv", "graph.db"), cfg.Graph.BoltPath)
	assert.Equal(t, filepath.Join(home, "inv", "dlq.db"), cfg.DLQ.DSN)
}
