// Package workflow runs one transcription end to end for the CLI and the web
// UI.
//
// A Runner wraps the segment pipeline with everything around it: the
// cross-process run lock, the run history record, report rendering and the
// atomic write of the transcript, and the completion/failure notifications.
// History and notification failures are logged as warnings and never fail a
// run; the pipeline error is always the one returned.
package workflow
