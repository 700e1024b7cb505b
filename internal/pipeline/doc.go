// Package pipeline orchestrates one transcription run: input validation,
// audio extraction, model loading, diarization, and per-turn recognition.
//
// A Pipeline is safe to share between the CLI and the web UI. It keeps the
// model loader across runs but refuses overlapping runs with ErrBusy, so the
// models are never driven by two requests at once. Every temp file a run
// creates lives in a per-run tempfile.Set that is cleaned up on return.
//
// Segment filtering follows a fixed order for each turn: turns shorter than
// MinSegmentDuration are skipped without cropping, crop and recognition
// failures are logged and skipped, and blank text is dropped. A run that
// keeps no segments fails with ErrNoSegments.
package pipeline
