// Package config loads docmap configuration from YAML and builds the logger,
// store and manager it describes.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jacentio/docmap/sequence"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Config is the root configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Sequence SequenceConfig `yaml:"sequence"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StoreConfig selects and configures the backend.
type StoreConfig struct {
	Driver   string         `yaml:"driver"` // memory, sqlite or dynamodb
	DSN      string         `yaml:"dsn"`    // sqlite database path
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	Region         string `yaml:"region"`
	Profile        string `yaml:"profile"`
	Endpoint       string `yaml:"endpoint"` // e.g. DynamoDB Local
	TablePrefix    string `yaml:"table_prefix"`
	ScanSegments   int    `yaml:"scan_segments"`
	ConsistentRead *bool  `yaml:"consistent_read"`
}

// SequenceConfig configures the sequence allocator.
type SequenceConfig struct {
	Collection string `yaml:"collection"`
	MaxRetries int    `yaml:"max_retries"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MetricsConfig enables Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv builds configuration from DOCMAP_* environment variables only.
//
//	DOCMAP_STORE_DRIVER            memory, sqlite or dynamodb (default: memory)
//	DOCMAP_STORE_DSN               sqlite path (default: docmap.db)
//	DOCMAP_DYNAMODB_REGION         AWS region
//	DOCMAP_DYNAMODB_PROFILE        shared config profile
//	DOCMAP_DYNAMODB_ENDPOINT       endpoint override
//	DOCMAP_DYNAMODB_TABLE_PREFIX   table name prefix
//	DOCMAP_DYNAMODB_SCAN_SEGMENTS  parallel scan segments (default: 1)
//	DOCMAP_SEQUENCE_COLLECTION     sequence collection (default: sequences)
//	DOCMAP_SEQUENCE_MAX_RETRIES    allocator retry budget (default: 100)
//	DOCMAP_LOG_LEVEL               debug, info, warn, error (default: info)
//	DOCMAP_LOG_FORMAT              json or console (default: json)
//	DOCMAP_METRICS_ENABLED         enable metrics (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCMAP_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DOCMAP_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	if v := os.Getenv("DOCMAP_DYNAMODB_REGION"); v != "" {
		cfg.Store.DynamoDB.Region = v
	}
	if v := os.Getenv("DOCMAP_DYNAMODB_PROFILE"); v != "" {
		cfg.Store.DynamoDB.Profile = v
	}
	if v := os.Getenv("DOCMAP_DYNAMODB_ENDPOINT"); v != "" {
		cfg.Store.DynamoDB.Endpoint = v
	}
	if v := os.Getenv("DOCMAP_DYNAMODB_TABLE_PREFIX"); v != "" {
		cfg.Store.DynamoDB.TablePrefix = v
	}
	if v := os.Getenv("DOCMAP_DYNAMODB_SCAN_SEGMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.DynamoDB.ScanSegments = n
		}
	}

	if v := os.Getenv("DOCMAP_SEQUENCE_COLLECTION"); v != "" {
		cfg.Sequence.Collection = v
	}
	if v := os.Getenv("DOCMAP_SEQUENCE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sequence.MaxRetries = n
		}
	}

	if v := os.Getenv("DOCMAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCMAP_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("DOCMAP_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "docmap.db"
	}
	if cfg.Store.DynamoDB.ScanSegments < 1 {
		cfg.Store.DynamoDB.ScanSegments = 1
	}
	if cfg.Store.DynamoDB.ScanSegments > 256 {
		cfg.Store.DynamoDB.ScanSegments = 256
	}
	if cfg.Store.DynamoDB.ConsistentRead == nil {
		t := true
		cfg.Store.DynamoDB.ConsistentRead = &t
	}

	if cfg.Sequence.Collection == "" {
		cfg.Sequence.Collection = sequence.DefaultCollection
	}
	if cfg.Sequence.MaxRetries < 1 {
		cfg.Sequence.MaxRetries = sequence.DefaultMaxRetries
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverMemory, DriverSQLite, DriverDynamoDB:
	default:
		return fmt.Errorf("store.driver must be one of: memory, sqlite, dynamodb, got %q", cfg.Store.Driver)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}
	return nil
}

// Logger builds a zerolog logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if c.Logging.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
