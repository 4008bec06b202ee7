// Package config loads dagflow's runtime configuration.
//
// Values come from, in increasing precedence: built-in defaults, a
// config.yml file, a .env file and DAGFLOW_-prefixed environment variables.
// Nested keys map to underscores, so DAGFLOW_ENGINE_MAX_PARALLEL sets
// engine.max_parallel.
//
// # Usage
//
//	cfg, err := config.Load(config.WithConfigFile("dagflow.yml"))
package config
