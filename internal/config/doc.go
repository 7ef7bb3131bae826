// Package config loads, validates, and normalizes the TOML configuration
// that drives a deployment run.
//
// Load resolves the config path (explicit flag, project-local foundry.toml,
// then the user default), applies repository defaults for anything the file
// omits, expands ~ in path fields, and validates the result. Configuration
// problems are reported before any pipeline state is touched.
package config
