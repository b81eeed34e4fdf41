// Package config loads and validates the plaza server configuration from a
// YAML file. Values support ${VAR} environment expansion, and timing fields
// are written as Go duration strings ("15s", "1m").
package config
