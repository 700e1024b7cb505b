package transcribe

import (
	"context"

	"minutes/internal/media/waveform"
	"minutes/internal/models"
	"minutes/internal/transcript"
)

// Options carries the decoding settings forced on every request.
type Options struct {
	Language string
	Task     string
}

// Diarizer splits a track into speaker turns.
type Diarizer interface {
	models.Component
	Diarize(ctx context.Context, audioPath string) ([]transcript.Turn, error)
}

// Transcriber converts one cropped clip into text.
type Transcriber interface {
	models.Component
	Transcribe(ctx context.Context, clip waveform.Clip, opts Options) (string, error)
}
