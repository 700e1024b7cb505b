// Package tempfile tracks the temporary files a transcription run creates.
//
// Each run owns a Set rooted in its own directory. Extracted audio, cropped
// clips, and staged uploads are allocated through the set so that a single
// deferred Cleanup removes all of them on every exit path.
package tempfile
