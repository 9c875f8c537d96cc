// Package config loads gateway configuration from the environment
// (envconfig) and the target site profile from a YAML or TOML file.
package config
