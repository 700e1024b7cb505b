package modelhost

import (
	"context"

	"minutes/internal/device"
	"minutes/internal/media/waveform"
	"minutes/internal/transcribe"
	"minutes/internal/transcript"
)

// Diarizer runs a pyannote pipeline inside the host.
type Diarizer struct {
	host  *Host
	model string
}

// NewDiarizer binds a diarization model to host.
func NewDiarizer(host *Host, model string) *Diarizer {
	return &Diarizer{host: host, model: model}
}

func (d *Diarizer) Name() string { return "diarizer" }

func (d *Diarizer) Load(ctx context.Context, dev device.Kind) error {
	return d.host.Load(ctx, dev, "diarizer", d.model)
}

func (d *Diarizer) Diarize(ctx context.Context, audioPath string) ([]transcript.Turn, error) {
	return d.host.Diarize(ctx, audioPath)
}

// Close stops the shared host.
func (d *Diarizer) Close() error { return d.host.Close() }

// Transcriber runs a Hugging Face Whisper checkpoint inside the host.
type Transcriber struct {
	host  *Host
	model string
}

// NewTranscriber binds a speech recognition model to host.
func NewTranscriber(host *Host, model string) *Transcriber {
	return &Transcriber{host: host, model: model}
}

func (t *Transcriber) Name() string { return "asr" }

func (t *Transcriber) Load(ctx context.Context, dev device.Kind) error {
	return t.host.Load(ctx, dev, "asr", t.model)
}

func (t *Transcriber) Transcribe(ctx context.Context, clip waveform.Clip, opts transcribe.Options) (string, error) {
	return t.host.Transcribe(ctx, clip.Path, opts.Language, opts.Task)
}

// Close stops the shared host.
func (t *Transcriber) Close() error { return t.host.Close() }

var (
	_ transcribe.Diarizer    = (*Diarizer)(nil)
	_ transcribe.Transcriber = (*Transcriber)(nil)
)
