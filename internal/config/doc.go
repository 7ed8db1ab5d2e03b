// Package config loads, normalizes, and validates VoxBox configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY and the Dropbox app credentials. The Config type centralizes
// every knob the daemon and CLI need, so inbox/vault directories and external
// service credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
