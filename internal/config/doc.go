// Package config loads, normalizes, and validates harvester configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. Credentials are deliberately absent here;
// they come from the process environment and are validated by internal/env.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
