package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/arbor/packet"
)

// Backend kinds.
const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config is the configuration of arbord.
type Config struct {
	// Listen is the TCP address of the sync protocol.
	// Default: ":7357"
	Listen string `yaml:"listen"`

	// HealthListen is the HTTP address of /health and /ready. Empty
	// disables the health server.
	// Default: ":7358"
	HealthListen string `yaml:"health_listen"`

	// MaxPacketSize is the largest accepted body, in bytes.
	// Default: 16 MiB
	MaxPacketSize int `yaml:"max_packet_size"`

	// MaxHeaderSize is the largest accepted header block, in bytes.
	// Default: 64 KiB
	MaxHeaderSize int `yaml:"max_header_size"`

	// PipelineDepth is how many framed requests of one connection may
	// wait for processing.
	// Default: 16
	PipelineDepth int `yaml:"pipeline_depth"`

	// ReadTimeout closes connections idle for longer.
	// Default: 5m
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing one response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ResponseEncoding is the body encoding of responses to requests
	// without an Encoding field: "", "zstd" or "lz4".
	// Default: "" (uncompressed)
	ResponseEncoding string `yaml:"response_encoding"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Accounts configures the account directory.
	Accounts AccountsConfig `yaml:"accounts"`

	// Backend configures the item store.
	Backend BackendConfig `yaml:"backend"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format"`
}

// AccountsConfig configures the account directory.
type AccountsConfig struct {
	// Path is the SQLite database of accounts.
	// Default: ${ARBOR_DATA:-.}/accounts.db
	Path string `yaml:"path"`

	// PoolSize is the number of SQLite connections.
	// Default: 2
	PoolSize int `yaml:"pool_size"`

	// CacheTTL is how long verified credentials are remembered. Zero
	// verifies every request.
	// Default: 1m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// BackendConfig selects and configures the item store.
type BackendConfig struct {
	// Kind is sqlite or dynamodb.
	// Default: sqlite
	Kind string `yaml:"kind"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// SQLiteConfig configures the SQLite item store.
type SQLiteConfig struct {
	// Path is the SQLite database of items.
	// Default: ${ARBOR_DATA:-.}/items.db
	Path string `yaml:"path"`

	// PoolSize is the number of SQLite connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// DynamoDBConfig configures the DynamoDB item store.
type DynamoDBConfig struct {
	// Region overrides the AWS region of the default config chain.
	Region string `yaml:"region"`

	// Endpoint overrides the DynamoDB endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint"`

	ItemsTable    string `yaml:"items_table"`
	ChildrenTable string `yaml:"children_table"`
	CountersTable string `yaml:"counters_table"`

	// NumShards spreads the children of one parent over partitions.
	// Default: 1
	NumShards int `yaml:"num_shards"`

	// TombstoneRetention is how long removed items are kept. Zero keeps
	// them forever.
	TombstoneRetention time.Duration `yaml:"tombstone_retention"`
}

// Default returns the default configuration. Loaded files are merged
// into it.
func Default() *Config {
	limits := packet.DefaultLimits()
	return &Config{
		Listen:        ":7357",
		HealthListen:  ":7358",
		MaxPacketSize: limits.MaxPacketSize,
		MaxHeaderSize: limits.MaxHeaderSize,
		PipelineDepth: 16,
		ReadTimeout:   5 * time.Minute,
		WriteTimeout:  30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Accounts: AccountsConfig{
			Path:     "${ARBOR_DATA:-.}/accounts.db",
			PoolSize: 2,
			CacheTTL: time.Minute,
		},
		Backend: BackendConfig{
			Kind: BackendSQLite,
			SQLite: SQLiteConfig{
				Path:     "${ARBOR_DATA:-.}/items.db",
				PoolSize: 4,
			},
			DynamoDB: DynamoDBConfig{
				ItemsTable:    "arbor_items",
				ChildrenTable: "arbor_children",
				CountersTable: "arbor_counters",
				NumShards:     1,
			},
		},
	}
}

// Load loads configuration from the file named by ARBOR_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("ARBOR_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ARBOR_CONFIG environment variable not set; " +
			"set it to the path of your arbor.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default and expands
// variables in paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ExpandVariables()
	return cfg, nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) ExpandVariables() {
	c.Accounts.Path = expandVars(c.Accounts.Path)
	c.Backend.SQLite.Path = expandVars(c.Backend.SQLite.Path)
	c.Backend.DynamoDB.Endpoint = expandVars(c.Backend.DynamoDB.Endpoint)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}
	if c.MaxPacketSize <= 0 {
		errs = append(errs, fmt.Errorf("max_packet_size must be positive"))
	}
	if c.MaxHeaderSize <= 0 {
		errs = append(errs, fmt.Errorf("max_header_size must be positive"))
	}
	if c.PipelineDepth < 1 {
		errs = append(errs, fmt.Errorf("pipeline_depth must be at least 1"))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("timeouts must not be negative"))
	}
	if !packet.ValidEncoding(c.ResponseEncoding) {
		errs = append(errs, fmt.Errorf("response_encoding %q is not one of: \"\", %s, %s",
			c.ResponseEncoding, packet.EncodingZstd, packet.EncodingLZ4))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"json", "text"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if c.Accounts.Path == "" {
		errs = append(errs, fmt.Errorf("accounts.path is required"))
	}
	if c.Accounts.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("accounts.cache_ttl must not be negative"))
	}

	switch c.Backend.Kind {
	case BackendSQLite:
		if c.Backend.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("backend.sqlite.path is required"))
		}
	case BackendDynamoDB:
		ddb := c.Backend.DynamoDB
		if ddb.ItemsTable == "" || ddb.ChildrenTable == "" || ddb.CountersTable == "" {
			errs = append(errs, fmt.Errorf("backend.dynamodb table names are required"))
		}
		if ddb.NumShards < 1 || ddb.NumShards > 256 {
			errs = append(errs, fmt.Errorf("backend.dynamodb.num_shards must be between 1 and 256"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.kind must be one of: %s, %s", BackendSQLite, BackendDynamoDB))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Limits returns the packet limits.
func (c *Config) Limits() packet.Limits {
	return packet.Limits{
		MaxPacketSize: c.MaxPacketSize,
		MaxHeaderSize: c.MaxHeaderSize,
	}
}
