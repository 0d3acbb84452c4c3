package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Graph store backend and credentials
	Graph GraphConfig `mapstructure:"graph" yaml:"graph"`

	// Parent-resolution retry policy
	Serializer SerializerConfig `mapstructure:"serializer" yaml:"serializer"`

	// Store reachability probing
	Availability AvailabilityConfig `mapstructure:"availability" yaml:"availability"`

	// HTTP liveness/admin surface
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Dead-letter journal of terminal serialization failures
	DLQ DLQConfig `mapstructure:"dlq" yaml:"dlq"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// Graph backends understood by graph.Open
const (
	BackendNeo4j  = "neo4j"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

type GraphConfig struct {
	Backend               string        `mapstructure:"backend" yaml:"backend"` // "neo4j", "bolt", "memory"
	Neo4jURI              string        `mapstructure:"neo4j_uri" yaml:"neo4j_uri"`
	Neo4jUser             string        `mapstructure:"neo4j_user" yaml:"neo4j_user"`
	Neo4jPassword         string        `mapstructure:"neo4j_password" yaml:"neo4j_password"`
	Neo4jDatabase         string        `mapstructure:"neo4j_database" yaml:"neo4j_database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size" yaml:"max_connection_pool_size"`
	BoltPath              string        `mapstructure:"bolt_path" yaml:"bolt_path"`
	BoltLockTimeout       time.Duration `mapstructure:"bolt_lock_timeout" yaml:"bolt_lock_timeout"`
}

type SerializerConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"` // total parent evaluations, 1 initial + retries
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	SchemaVersion string        `mapstructure:"schema_version" yaml:"schema_version"`
	SourceOfTruth string        `mapstructure:"source_of_truth" yaml:"source_of_truth"`
}

type AvailabilityConfig struct {
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"` // 0 disables the refresher
}

type ServerConfig struct {
	ListenAddr       string  `mapstructure:"listen_addr" yaml:"listen_addr"`
	ActualProbeRate  float64 `mapstructure:"actual_probe_rate" yaml:"actual_probe_rate"` // ACTUAL probes per second over HTTP
	ActualProbeBurst int     `mapstructure:"actual_probe_burst" yaml:"actual_probe_burst"`
}

type DLQConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver"` // "postgres", "sqlite3"
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
	JSON       bool   `mapstructure:"json" yaml:"json"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Graph: GraphConfig{
			Backend:               BackendBolt,
			Neo4jURI:              "bolt://localhost:7687",
			Neo4jUser:             "neo4j",
			Neo4jDatabase:         "neo4j",
			MaxConnectionPoolSize: 50,
			BoltPath:              filepath.Join(homeDir, ".graphinventory", "graph.db"),
			BoltLockTimeout:       time.Second,
		},
		Serializer: SerializerConfig{
			MaxAttempts:   3,
			SchemaVersion: "v1",
			SourceOfTruth: "graphinventory",
		},
		Availability: AvailabilityConfig{
			ProbeTimeout:    5 * time.Second,
			RefreshInterval: 30 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr:       ":8447",
			ActualProbeRate:  1,
			ActualProbeBurst: 3,
		},
		DLQ: DLQConfig{
			Enabled: true,
			Driver:  "sqlite3",
			DSN:     filepath.Join(homeDir, ".graphinventory", "dlq.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load loads configuration from file; path "" searches the standard locations
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	// INVENTORY_GRAPH_BACKEND overrides graph.backend, and so on
	v.SetEnvPrefix("INVENTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".graphinventory")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".graphinventory"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("graph.backend", cfg.Graph.Backend)
	v.SetDefault("graph.neo4j_uri", cfg.Graph.Neo4jURI)
	v.SetDefault("graph.neo4j_user", cfg.Graph.Neo4jUser)
	v.SetDefault("graph.neo4j_password", cfg.Graph.Neo4jPassword)
	v.SetDefault("graph.neo4j_database", cfg.Graph.Neo4jDatabase)
	v.SetDefault("graph.max_connection_pool_size", cfg.Graph.MaxConnectionPoolSize)
	v.SetDefault("graph.bolt_path", cfg.Graph.BoltPath)
	v.SetDefault("graph.bolt_lock_timeout", cfg.Graph.BoltLockTimeout)

	v.SetDefault("serializer.max_attempts", cfg.Serializer.MaxAttempts)
	v.SetDefault("serializer.retry_delay", cfg.Serializer.RetryDelay)
	v.SetDefault("serializer.schema_version", cfg.Serializer.SchemaVersion)
	v.SetDefault("serializer.source_of_truth", cfg.Serializer.SourceOfTruth)

	v.SetDefault("availability.probe_timeout", cfg.Availability.ProbeTimeout)
	v.SetDefault("availability.refresh_interval", cfg.Availability.RefreshInterval)

	v.SetDefault("server.listen_addr", cfg.Server.ListenAddr)
	v.SetDefault("server.actual_probe_rate", cfg.Server.ActualProbeRate)
	v.SetDefault("server.actual_probe_burst", cfg.Server.ActualProbeBurst)

	v.SetDefault("dlq.enabled", cfg.DLQ.Enabled)
	v.SetDefault("dlq.driver", cfg.DLQ.Driver)
	v.SetDefault("dlq.dsn", cfg.DLQ.DSN)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.json", cfg.Logging.JSON)
	v.SetDefault("logging.output_file", cfg.Logging.OutputFile)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	// godotenv.Load never overrides variables that are already set, so the
	// first file to define a key wins
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".graphinventory", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the unprefixed variables shared with docker-compose
func applyEnvOverrides(cfg *Config) {
	// Graph configuration
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Graph.Neo4jURI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Graph.Neo4jUser = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Graph.Neo4jPassword = password
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Graph.Neo4jDatabase = db
	}
	if backend := os.Getenv("GRAPH_BACKEND"); backend != "" {
		cfg.Graph.Backend = strings.ToLower(backend)
	}
	if path := os.Getenv("BOLT_PATH"); path != "" {
		cfg.Graph.BoltPath = expandPath(path)
	}

	// DLQ configuration
	if driver := os.Getenv("DLQ_DRIVER"); driver != "" {
		cfg.DLQ.Driver = driver
	}
	if dsn := os.Getenv("DLQ_DSN"); dsn != "" {
		cfg.DLQ.DSN = dsn
	}

	// Serializer configuration
	if attempts := os.Getenv("SERIALIZER_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.Serializer.MaxAttempts = n
		}
	}
	if delay := os.Getenv("SERIALIZER_RETRY_DELAY_MS"); delay != "" {
		if ms, err := strconv.Atoi(delay); err == nil {
			cfg.Serializer.RetryDelay = time.Duration(ms) * time.Millisecond
		}
	}

	// Availability configuration
	if refresh := os.Getenv("AVAILABILITY_REFRESH_SECONDS"); refresh != "" {
		if seconds, err := strconv.Atoi(refresh); err == nil {
			cfg.Availability.RefreshInterval = time.Duration(seconds) * time.Second
		}
	}

	// Server configuration
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}

	// File paths may come from YAML with a leading ~
	cfg.Graph.BoltPath = expandPath(cfg.Graph.BoltPath)
	cfg.Logging.OutputFile = expandPath(cfg.Logging.OutputFile)
	if cfg.DLQ.Driver == "sqlite3" {
		cfg.DLQ.DSN = expandPath(cfg.DLQ.DSN)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("graph", c.Graph)
	v.Set("serializer", c.Serializer)
	v.Set("availability", c.Availability)
	v.Set("server", c.Server)
	v.Set("dlq", c.DLQ)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
