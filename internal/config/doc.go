// Package config loads, normalizes, and validates shelfscan configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHELFSCAN_VISION_API_KEY. The Config type centralizes every knob the CLI
// and pipeline need, so workspace directories and external service
// credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
