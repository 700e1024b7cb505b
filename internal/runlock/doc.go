// Package runlock serializes transcription runs across processes with an
// advisory file lock, so a CLI run and the web UI never load the models
// twice on the same machine.
package runlock
