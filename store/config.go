package store

import "time"

// Config holds configuration for the Store.
type Config struct {
	// ItemsTable holds one record per item, keyed by "pk".
	// Default: "arbor_items"
	ItemsTable string

	// ChildrenTable indexes items by parent, keyed by "pk" and "child_id".
	// Default: "arbor_children"
	ChildrenTable string

	// CountersTable holds one seq counter per tenant, keyed by "pk".
	// Default: "arbor_counters"
	CountersTable string

	// NumShards is the number of partitions the children of one parent
	// are spread over. Higher values increase write throughput under a
	// single parent but cost one Query per shard when listing.
	// Default: 1 (no sharding, single query)
	// Max: 256
	//
	// Per-shard limits:
	//   - Writes: 1,000/sec
	//   - Reads: 3,000/sec
	NumShards int

	// TombstoneRetention is how long removed items keep their seq before
	// DynamoDB TTL deletes them. Zero keeps tombstones forever.
	TombstoneRetention time.Duration
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		ItemsTable:    "arbor_items",
		ChildrenTable: "arbor_children",
		CountersTable: "arbor_counters",
		NumShards:     1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.ItemsTable == "" {
		c.ItemsTable = def.ItemsTable
	}
	if c.ChildrenTable == "" {
		c.ChildrenTable = def.ChildrenTable
	}
	if c.CountersTable == "" {
		c.CountersTable = def.CountersTable
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.TombstoneRetention < 0 {
		c.TombstoneRetention = 0
	}
}
