// Package config loads the voice translator's YAML configuration over built-in
// defaults and reads the service credential from the environment.
package config
