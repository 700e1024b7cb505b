package testsupport

import (
	"context"
	"fmt"
	"sync"

	"minutes/internal/device"
	"minutes/internal/media/waveform"
	"minutes/internal/transcribe"
	"minutes/internal/transcript"
)

// FakeDiarizer returns a fixed list of turns.
type FakeDiarizer struct {
	Turns   []transcript.Turn
	Err     error
	LoadErr error

	mu     sync.Mutex
	loads  []device.Kind
	inputs []string
	closed int
}

func (f *FakeDiarizer) Name() string { return "fake-diarizer" }

func (f *FakeDiarizer) Load(_ context.Context, dev device.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, dev)
	return f.LoadErr
}

func (f *FakeDiarizer) Diarize(_ context.Context, audioPath string) ([]transcript.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, audioPath)
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]transcript.Turn(nil), f.Turns...), nil
}

func (f *FakeDiarizer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Loads returns the devices passed to Load.
func (f *FakeDiarizer) Loads() []device.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Kind(nil), f.loads...)
}

// Inputs returns the audio paths passed to Diarize.
func (f *FakeDiarizer) Inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

// Closed reports how many times Close was called.
func (f *FakeDiarizer) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeTranscriber answers each clip through Respond, or with a label built
// from the clip bounds when Respond is nil.
type FakeTranscriber struct {
	Respond func(call int, clip waveform.Clip, opts transcribe.Options) (string, error)
	LoadErr error

	mu    sync.Mutex
	loads int
	clips []waveform.Clip
	opts  []transcribe.Options
}

func (f *FakeTranscriber) Name() string { return "fake-transcriber" }

func (f *FakeTranscriber) Load(context.Context, device.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.LoadErr
}

func (f *FakeTranscriber) Transcribe(_ context.Context, clip waveform.Clip, opts transcribe.Options) (string, error) {
	f.mu.Lock()
	call := len(f.clips)
	f.clips = append(f.clips, clip)
	f.opts = append(f.opts, opts)
	respond := f.Respond
	f.mu.Unlock()
	if respond != nil {
		return respond(call, clip, opts)
	}
	return fmt.Sprintf("clip %s-%s", transcript.FormatDuration(clip.Start), transcript.FormatDuration(clip.End)), nil
}

// LoadCount reports how many times Load was called.
func (f *FakeTranscriber) LoadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// Clips returns every clip passed to Transcribe.
func (f *FakeTranscriber) Clips() []waveform.Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]waveform.Clip(nil), f.clips...)
}

// Options returns the decoding options of every call.
func (f *FakeTranscriber) Options() []transcribe.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcribe.Options(nil), f.opts...)
}

// FixedProber reports only the listed device kinds as available.
type FixedProber []device.Kind

func (p FixedProber) Available(_ context.Context, kind device.Kind) bool {
	if kind == device.CPU {
		return true
	}
	for _, k := range p {
		if k == kind {
			return true
		}
	}
	return false
}

var (
	_ transcribe.Diarizer    = (*FakeDiarizer)(nil)
	_ transcribe.Transcriber = (*FakeTranscriber)(nil)
	_ device.Prober          = FixedProber(nil)
)
