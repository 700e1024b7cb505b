// Package history records every transcription run in a SQLite database.
//
// A run is inserted as running before any model work starts and finished
// with its counts, the backend and device used, and the rendered report. The
// input is identified by its BLAKE3 digest so a repeated transcription of the
// same recording can point at the earlier output.
package history
