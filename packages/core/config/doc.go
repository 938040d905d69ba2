// Package config handles configuration loading and management for apicheck.
//
// It provides functionality for:
//   - Loading apicheck.yaml, apicheck.yml, apicheck.json or .apicheckrc
//   - APICHECK_* environment variable overrides
//   - Default configuration values, including the reqres.in environment
//   - Resolving a named environment into a base URL, headers and variables
package config
