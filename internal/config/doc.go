// Package config loads, validates, and normalizes inkdex configuration.
//
// Configuration lives in a TOML file (default ~/.config/inkdex/config.toml,
// with ./inkdex.toml as a project-local fallback). Load applies defaults,
// expands ~ in paths, and rejects unusable values before anything else runs.
package config
