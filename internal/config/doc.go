// Package config loads, normalizes, and validates bimcvprep configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the BIMCVPREP_ROTATION_TABLE
// environment fallback. The Config type centralizes every knob the pipeline
// and CLI need: where the archive shards live, where the prepared layout and
// the scratch root go, and how shard failures are handled.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
