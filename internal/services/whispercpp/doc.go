// Package whispercpp runs a ggml Whisper model in process through the
// whisper.cpp Go bindings.
//
// The bindings need libwhisper and its headers at link time, so the native
// client is only built with the whispercpp build tag. Without the tag the
// package still validates configuration but Load reports ErrNotCompiled.
//
// Japanese output from whisper.cpp segments is joined without separators;
// the segment boundaries fall inside sentences rather than between words.
package whispercpp
