// Package config loads, normalizes, and validates tilebatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TILEBATCH_TILES_DIR. The Config type centralizes every knob the importer and
// CLI need, so tile, texture, cache, and ledger locations are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
