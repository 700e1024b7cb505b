// Package logging assembles structured slog loggers for the minutes tools.
//
// It owns the console and JSON handlers and the level/output plumbing. The
// context helpers tag log lines with run IDs, pipeline stages, and request
// correlation IDs so that a single transcription can be followed across the
// CLI, the web UI, and the model host. A no-op logger is provided for tests.
package logging
