// Package config loads and validates lectern configuration from TOML.
//
// Configuration is resolved from an explicit --config path, then
// ~/.config/lectern/config.toml, then lectern.toml in the working directory.
// Missing files fall back to defaults so read-only commands work without any
// setup. All path fields are expanded (~) and made absolute during load.
package config
