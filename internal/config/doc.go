// Package config provides YAML configuration loading and validation for
// the krishi-bandhu client: backend endpoint, audio capture format,
// recording policy, submission retry policy, metrics, and logging.
package config
