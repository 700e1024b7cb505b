// Package main hosts the minutes CLI entrypoint and command graph.
//
// Invoked with a media file, the root command runs the transcription
// workflow directly and writes a markdown report next to the input. The
// subcommands serve the upload UI, report dependency and device status,
// manage configuration, browse run history, draft meeting minutes from an
// existing transcript, and send a test notification.
//
// Keep this package lean: behavior lives in the internal packages and the
// commands here only resolve configuration and render output.
package main
