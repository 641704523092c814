// Package config loads signald settings from a yaml, toml or json file and
// SIGNALD_* environment overrides.
package config
