// Package config handles configuration loading for opencoder.
//
// # Configuration File
//
// Location (first match wins):
//
//  1. Path from the OPENCODER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/opencoder/config.yaml (~/.config when unset)
//
// A missing file is not an error; every field has a default. Files with a
// .toml extension are parsed as TOML, everything else as YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	coder:
//	  token: "${CODER_SESSION_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Durations use Go's time.ParseDuration syntax:
//
//	stream:
//	  max_retries: 5
//	  backoff_base: "3s"
//	  backoff_max: "30s"
//	workspaces:
//	  refresh_interval: "10s"
//
// # Sections
//
//   - coder: deployment URL, token, wildcard hostname, path app proxy URL
//   - stream: event stream retry bounds
//   - workspaces: list refresh interval (drives reconciliation)
//   - server: local API address and optional bearer token
//   - database: SQLite file holding the saved session
//   - logging: level (debug, info, warn, error) and format (text, json)
package config
