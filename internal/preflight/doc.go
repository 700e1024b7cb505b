// Package preflight provides readiness checks for the binaries, credentials,
// backends and filesystem paths that minutes depends on.
//
// These checks run in two contexts:
//   - The CLI "minutes status" command renders every result as a table.
//   - The transcription command runs CheckSystemDeps before loading models so
//     a missing ffmpeg or uvx is reported up front.
//
// Backend checks follow the configured transcription backend; backends that
// are not selected are skipped.
package preflight
