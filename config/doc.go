// Package config provides YAML configuration loading for arbord.
//
// Configuration is loaded from a single file specified by either the
// ARBOR_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). Values missing from the file keep their [Default].
//
// Variable expansion is performed on path fields after loading:
// ${VAR} and ${VAR:-default} patterns are expanded from the environment.
// No other environment variables override config values.
//
// An example file:
//
//	listen: ":7357"
//	response_encoding: zstd
//	log:
//	  level: debug
//	accounts:
//	  path: /var/lib/arbor/accounts.db
//	backend:
//	  kind: dynamodb
//	  dynamodb:
//	    region: eu-west-1
//	    num_shards: 4
package config
