// Package config loads, normalizes, and validates minutes configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HF_TOKEN, OPENAI_API_KEY, and OPENROUTER_API_KEY. Downstream code receives
// sanitized paths, a canonical backend name, and clear validation errors.
package config
