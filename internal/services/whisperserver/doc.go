// Package whisperserver transcribes clips through a running whisper.cpp
// server (the `whisper-server` example binary) using its /inference
// endpoint.
package whisperserver
