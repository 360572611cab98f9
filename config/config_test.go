package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbor.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen != ":7357" {
		t.Errorf("expected listen=:7357, got %s", cfg.Listen)
	}
	if cfg.Backend.Kind != BackendSQLite {
		t.Errorf("expected backend.kind=sqlite, got %s", cfg.Backend.Kind)
	}
	if cfg.PipelineDepth != 16 {
		t.Errorf("expected pipeline_depth=16, got %d", cfg.PipelineDepth)
	}
	if cfg.Accounts.CacheTTL != time.Minute {
		t.Errorf("expected accounts.cache_ttl=1m, got %v", cfg.Accounts.CacheTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_RequiresArborConfig(t *testing.T) {
	t.Setenv("ARBOR_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ARBOR_CONFIG not set, got nil")
	}
	expectedMsg := "ARBOR_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithArborConfig(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
read_timeout: 10s
response_encoding: lz4
log:
  level: debug
backend:
  kind: dynamodb
  dynamodb:
    region: eu-west-1
    num_shards: 8
    tombstone_retention: 720h
`)
	t.Setenv("ARBOR_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("expected listen=127.0.0.1:9000, got %s", cfg.Listen)
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Errorf("expected read_timeout=10s, got %v", cfg.ReadTimeout)
	}
	if cfg.ResponseEncoding != "lz4" {
		t.Errorf("expected response_encoding=lz4, got %s", cfg.ResponseEncoding)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log.level=debug, got %s", cfg.Log.Level)
	}
	// Unset values keep their defaults.
	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format=json, got %s", cfg.Log.Format)
	}
	if cfg.WriteTimeout != 30*time.Second {
		t.Errorf("expected write_timeout=30s, got %v", cfg.WriteTimeout)
	}

	ddb := cfg.Backend.DynamoDB
	if ddb.Region != "eu-west-1" || ddb.NumShards != 8 {
		t.Errorf("expected eu-west-1 with 8 shards, got %+v", ddb)
	}
	if ddb.ItemsTable != "arbor_items" {
		t.Errorf("expected default items table, got %s", ddb.ItemsTable)
	}
	if ddb.TombstoneRetention != 720*time.Hour {
		t.Errorf("expected tombstone_retention=720h, got %v", ddb.TombstoneRetention)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected config to validate, got %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadFile_ExpandsPaths(t *testing.T) {
	t.Setenv("ARBOR_DATA", "/srv/arbor")
	t.Setenv("ARBOR_TEST_UNSET", "")
	path := writeConfig(t, `
accounts:
  path: ${ARBOR_TEST_UNSET:-/etc/arbor}/accounts.db
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Accounts.Path != "/etc/arbor/accounts.db" {
		t.Errorf("expected default expansion, got %s", cfg.Accounts.Path)
	}
	if cfg.Backend.SQLite.Path != "/srv/arbor/items.db" {
		t.Errorf("expected ARBOR_DATA expansion, got %s", cfg.Backend.SQLite.Path)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("ARBOR_TEST_SET", "value")
	t.Setenv("ARBOR_TEST_EMPTY", "")

	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"${ARBOR_TEST_SET}", "value"},
		{"${ARBOR_TEST_SET:-other}", "value"},
		{"${ARBOR_TEST_EMPTY:-fallback}", "fallback"},
		{"${ARBOR_TEST_EMPTY}", ""},
		{"a/${ARBOR_TEST_SET}/b/${ARBOR_TEST_EMPTY:-c}", "a/value/b/c"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandVars(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen is required"},
		{"zero packet size", func(c *Config) { c.MaxPacketSize = 0 }, "max_packet_size"},
		{"zero header size", func(c *Config) { c.MaxHeaderSize = 0 }, "max_header_size"},
		{"zero pipeline", func(c *Config) { c.PipelineDepth = 0 }, "pipeline_depth"},
		{"negative timeout", func(c *Config) { c.ReadTimeout = -time.Second }, "timeouts"},
		{"bad encoding", func(c *Config) { c.ResponseEncoding = "gzip" }, "response_encoding"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"no accounts path", func(c *Config) { c.Accounts.Path = "" }, "accounts.path"},
		{"negative cache ttl", func(c *Config) { c.Accounts.CacheTTL = -time.Second }, "accounts.cache_ttl"},
		{"bad backend", func(c *Config) { c.Backend.Kind = "mongo" }, "backend.kind"},
		{"no sqlite path", func(c *Config) { c.Backend.SQLite.Path = "" }, "backend.sqlite.path"},
		{"no dynamodb table", func(c *Config) {
			c.Backend.Kind = BackendDynamoDB
			c.Backend.DynamoDB.CountersTable = ""
		}, "table names"},
		{"too many shards", func(c *Config) {
			c.Backend.Kind = BackendDynamoDB
			c.Backend.DynamoDB.NumShards = 1000
		}, "num_shards"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Listen = ""
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "listen") || !strings.Contains(err.Error(), "log.level") {
		t.Errorf("expected both errors reported, got %q", err.Error())
	}
}

func TestLimits(t *testing.T) {
	cfg := Default()
	cfg.MaxPacketSize = 1024
	cfg.MaxHeaderSize = 128

	limits := cfg.Limits()
	if limits.MaxPacketSize != 1024 || limits.MaxHeaderSize != 128 {
		t.Errorf("expected 1024/128, got %+v", limits)
	}
}
