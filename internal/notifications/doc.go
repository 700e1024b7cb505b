// Package notifications pushes run outcomes to ntfy.
//
// The topic URL comes from config.toml. Without one, NewService returns a
// no-op implementation. Callers log delivery failures as warnings; a failed
// notification never fails a transcription.
package notifications
