// Package modelhost runs the diarization and local speech recognition
// models in a long-lived Python worker started through uvx.
//
// The worker speaks newline-delimited JSON on stdin and stdout. Each request
// carries an id and the host serializes calls, so a single worker holds both
// models for the life of the process. Worker failures are classified into
// the services error markers: gated model access becomes a configuration
// error, unreadable audio a validation error, and everything else an
// external tool error.
package modelhost
