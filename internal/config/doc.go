// Package config loads, normalizes, and validates qtest CLI configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts),
// reads TOML files, and honours the QTEST_ADDRESS environment fallback. Command-line
// flags are applied by the caller after Load returns.
package config
