// Package config loads, normalizes, and validates SendToOneNote configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SENDTOONENOTE_CLIENT_ID and ONENOTE_SECTION_ID, optionally sourced from a
// .env file next to the config. The Config type centralizes every knob the
// daemon and CLI need so the queue root, upload target, and identity settings
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
