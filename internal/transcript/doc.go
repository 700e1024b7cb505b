// Package transcript holds the diarization turn and transcript segment types
// shared by the pipeline, the report builder, and run history, along with the
// HH:MM:SS timestamp rule.
package transcript
