// Package config handles configuration loading and merging for fanout.
//
// # Configuration Precedence
//
// Configuration values are resolved in the following order (highest to lowest priority):
//
//  1. CLI flags (--fail-fast, --keep-temp, --output, --log-level, --tui, etc.)
//  2. Environment variables (FANOUT_FAIL_FAST, FANOUT_KEEP_TEMP, ...)
//  3. Config file (fanout.yaml, fanout.yml or fanout.toml in the working
//     directory, or the file named by --config)
//  4. Hardcoded defaults
//
// When a higher-priority source sets a value, it overrides any lower-priority values.
//
// # File Formats
//
// The decoder is chosen by extension: .yaml and .yml use YAML, .toml uses
// TOML. Both formats share the same keys:
//
//	jobs: [authors, institutions, works]
//	reference_files: [country.csv, region.csv]
//	prerequisite: collect-ids
//	fail_fast: true
//	keep_temp: false
//	sample_interval: 1s
//	output_dir: ./merged
//	worker:
//	  command: [python, -m, openalex_parser]
//	  source: /data/openalex
//	  schema: /data/schema.sql
//
// # Environment Variables
//
// The following environment variables are recognized:
//
//   - FANOUT_FAIL_FAST: "true" or "false"
//   - FANOUT_KEEP_TEMP: "true" or "false"
//   - FANOUT_TUI: "true" or "false"
//   - FANOUT_OUTPUT_DIR, FANOUT_WORK_DIR: directories
//   - FANOUT_SAMPLE_INTERVAL: a Go duration such as 500ms
//   - FANOUT_LOG_LEVEL: trace, debug, info, warn or error
//   - FANOUT_DEBUG: any non-empty value forces debug logging
package config
