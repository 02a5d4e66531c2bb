// Package config loads, normalizes, and validates cratesync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for the
// Tidal client credentials (optionally sourced from a .env file next to the
// config). The Config value is built once and handed to every component at
// construction time; nothing reads settings from package-level state.
package config
