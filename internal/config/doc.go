// Package config provides configuration loading and validation for the
// meeting note taker service. It handles YAML-based configuration with
// per-section struct validation and enforces the loopback-only contract
// for every engine endpoint.
package config
