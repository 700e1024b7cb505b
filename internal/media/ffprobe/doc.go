// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The audio extractor uses it to confirm that a video container carries an
// audio stream before ffmpeg is invoked, and the status command uses it to
// describe inputs. Inspect runs the binary; Parse decodes captured output.
package ffprobe
