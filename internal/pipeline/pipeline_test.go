package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"minutes/internal/device"
	"minutes/internal/logging"
	"minutes/internal/media/extract"
	"minutes/internal/media/waveform"
	"minutes/internal/models"
	"minutes/internal/report"
	"minutes/internal/services"
	"minutes/internal/testsupport"
	"minutes/internal/transcribe"
	"minutes/internal/transcript"
)

const probeWithAudio = `{"streams":[{"index":0,"codec_type":"video"},{"index":1,"codec_type":"audio","sample_rate":"48000","channels":2}],"format":{"duration":"6.0"}}`

type harness struct {
	workDir     string
	diarizer    *testsupport.FakeDiarizer
	transcriber *testsupport.FakeTranscriber
	extractor   *extract.Extractor
	ffmpegCalls int
	ffmpegErr   error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		workDir:     filepath.Join(t.TempDir(), "work"),
		diarizer:    &testsupport.FakeDiarizer{},
		transcriber: &testsupport.FakeTranscriber{},
	}
	h.extractor = extract.New("ffmpeg", "ffprobe", 16000, logging.NewNop()).
		WithProbeRunner(func(context.Context, string, ...string) ([]byte, error) {
			return []byte(probeWithAudio), nil
		}).
		WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
			h.ffmpegCalls++
			if h.ffmpegErr != nil {
				return []byte("Invalid data found"), h.ffmpegErr
			}
			testsupport.WriteSineWAV(t, args[len(args)-1], 6, 16000)
			return nil, nil
		})
	return h
}

func (h *harness) pipeline(t *testing.T, mutate ...func(*Config, *Deps)) *Pipeline {
	t.Helper()
	cfg := Config{
		SampleRate:         16000,
		MinSegmentDuration: 100 * time.Millisecond,
		Language:           "ja",
		Task:               "transcribe",
		DevicePriority:     []device.Kind{device.CUDA, device.MPS, device.CPU},
		WorkDir:            h.workDir,
	}
	deps := Deps{
		Extractor:   h.extractor,
		Diarizer:    h.diarizer,
		Transcriber: h.transcriber,
		Prober:      testsupport.FixedProber(nil),
		Logger:      logging.NewNop(),
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	p, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func (h *harness) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.workDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp files cleaned up, found %d entries", len(entries))
	}
}

func turn(start, end time.Duration, speaker string) transcript.Turn {
	return transcript.Turn{Start: start, End: end, Speaker: speaker}
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if strings.HasSuffix(name, ".wav") {
		testsupport.WriteSineWAV(t, path, 6, 16000)
	} else {
		testsupport.WriteFile(t, path, 1024)
	}
	return path
}

func TestRunVideoEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{
		turn(0, 50*time.Millisecond, "SPEAKER_00"),
		turn(100*time.Millisecond, 2100*time.Millisecond, "SPEAKER_01"),
		turn(2100*time.Millisecond, 5100*time.Millisecond, "SPEAKER_00"),
	}
	p := h.pipeline(t)
	input := writeInput(t, "meeting.mp4")

	var progress []int
	var lastDone, lastTotal, segmentCalls int
	res, err := p.Run(context.Background(), Request{
		Input:    input,
		Progress: func(percent int, _ string) { progress = append(progress, percent) },
		OnSegment: func(done, total int) {
			segmentCalls++
			lastDone, lastTotal = done, total
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Skipped.Short != 1 || res.Skipped.Empty != 0 || res.Skipped.Failed != 0 {
		t.Fatalf("unexpected skipped counts %+v", res.Skipped)
	}
	if res.Turns-res.Skipped.Total() != len(res.Segments) {
		t.Fatalf("segment count %d does not match turns %d minus skipped %d", len(res.Segments), res.Turns, res.Skipped.Total())
	}
	first := res.Segments[0]
	if first.Start != "00:00:00" || first.End != "00:00:02" || first.Speaker != "SPEAKER_01" {
		t.Fatalf("unexpected first segment %+v", first)
	}
	if res.Segments[1].Start != "00:00:02" || res.Segments[1].End != "00:00:05" {
		t.Fatalf("unexpected second segment %+v", res.Segments[1])
	}
	if !slices.Equal(res.Speakers(), []string{"SPEAKER_01", "SPEAKER_00"}) {
		t.Fatalf("unexpected speakers %v", res.Speakers())
	}

	if !slices.Equal(progress, []int{ProgressPreparing, ProgressModels, ProgressAnalyzing}) {
		t.Fatalf("unexpected progress checkpoints %v", progress)
	}
	if segmentCalls != 3 || lastDone != 3 || lastTotal != 3 {
		t.Fatalf("unexpected segment callbacks calls=%d last=%d/%d", segmentCalls, lastDone, lastTotal)
	}

	if !res.Track.Derived || h.ffmpegCalls != 1 {
		t.Fatalf("expected a derived track from one ffmpeg call, got %+v calls=%d", res.Track, h.ffmpegCalls)
	}
	if _, err := os.Stat(res.Track.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected derived track removed, stat err=%v", err)
	}
	h.assertWorkDirEmpty(t)

	for _, opts := range h.transcriber.Options() {
		if opts != (transcribe.Options{Language: "ja", Task: "transcribe"}) {
			t.Fatalf("unexpected decoding options %+v", opts)
		}
	}
	clips := h.transcriber.Clips()
	if len(clips) != 2 || clips[0].Start != 100*time.Millisecond || clips[0].SampleRate != 16000 {
		t.Fatalf("unexpected clips %+v", clips)
	}

	rendered := report.Build(res.Segments, filepath.Base(input), time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	if !strings.Contains(rendered, "**総セグメント数**: 2個") {
		t.Fatalf("expected two segments in report:\n%s", rendered)
	}
}

func TestRunAudioPassThrough(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{turn(0, time.Second, "A")}
	p := h.pipeline(t)
	input := writeInput(t, "call.wav")

	res, err := p.Run(context.Background(), Request{Input: input})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Track.Path != input || res.Track.Derived {
		t.Fatalf("expected pass-through track, got %+v", res.Track)
	}
	if h.ffmpegCalls != 0 {
		t.Fatalf("expected no extraction, got %d ffmpeg calls", h.ffmpegCalls)
	}
	if !slices.Equal(h.diarizer.Inputs(), []string{input}) {
		t.Fatalf("diarizer should see the original input, got %v", h.diarizer.Inputs())
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input must survive the run: %v", err)
	}
	h.assertWorkDirEmpty(t)
}

func TestRunDropsEmptyAndFailedTurns(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{
		turn(0, time.Second, "A"),
		turn(time.Second, 2*time.Second, "B"),
		turn(2*time.Second, 3*time.Second, "A"),
		turn(3*time.Second, 3*time.Second+10*time.Millisecond, "B"),
	}
	h.transcriber.Respond = func(call int, _ waveform.Clip, _ transcribe.Options) (string, error) {
		switch call {
		case 0:
			return "  \n ", nil
		case 1:
			return "", errors.New("decoder crashed")
		default:
			return " 了解です ", nil
		}
	}
	p := h.pipeline(t)

	res, err := p.Run(context.Background(), Request{Input: writeInput(t, "call.wav")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := Skipped{Short: 1, Empty: 1, Failed: 1}
	if res.Skipped != want {
		t.Fatalf("skipped = %+v, want %+v", res.Skipped, want)
	}
	if len(res.Segments) != 1 || res.Segments[0].Text != "了解です" {
		t.Fatalf("unexpected segments %+v", res.Segments)
	}
	if res.Turns-res.Skipped.Total() != len(res.Segments) {
		t.Fatal("kept + skipped must equal turns")
	}
}

func TestRunSkipsTurnsThatCannotBeCropped(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{
		turn(0, time.Second, "A"),
		turn(7*time.Second, 8*time.Second, "B"),
		turn(2*time.Second, 3*time.Second, "A"),
	}
	p := h.pipeline(t)

	res, err := p.Run(context.Background(), Request{Input: writeInput(t, "call.wav")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := (Skipped{Failed: 1}); res.Skipped != want {
		t.Fatalf("skipped = %+v, want %+v", res.Skipped, want)
	}
	if len(res.Segments) != 2 || res.Segments[1].Start != "00:00:02" {
		t.Fatalf("unexpected segments %+v", res.Segments)
	}
	clips := h.transcriber.Clips()
	if len(clips) != 2 || clips[1].Start != 2*time.Second {
		t.Fatalf("turns after the crop failure must still be transcribed, got %+v", clips)
	}
	h.assertWorkDirEmpty(t)
}

func TestRunFloatWAVPassThrough(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{
		turn(0, 2*time.Second, "A"),
		turn(2*time.Second, 4*time.Second, "B"),
	}
	var cropCalls int
	p := h.pipeline(t, func(_ *Config, d *Deps) {
		d.CropRunner = func(_ context.Context, _ string, args ...string) ([]byte, error) {
			cropCalls++
			testsupport.WriteSineWAV(t, args[len(args)-1], 2, 16000)
			return nil, nil
		}
	})
	input := filepath.Join(t.TempDir(), "recorder.wav")
	testsupport.WriteFloatWAV(t, input, 5, 16000)

	res, err := p.Run(context.Background(), Request{Input: input})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Track.Derived || len(res.Segments) != 2 {
		t.Fatalf("unexpected result track=%+v segments=%d", res.Track, len(res.Segments))
	}
	if cropCalls != 2 {
		t.Fatalf("expected ffmpeg crops for the float track, got %d", cropCalls)
	}
	h.assertWorkDirEmpty(t)
}

func TestRunNoSegments(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{turn(0, time.Second, "A")}
	h.transcriber.Respond = func(int, waveform.Clip, transcribe.Options) (string, error) { return "", nil }
	p := h.pipeline(t)

	_, err := p.Run(context.Background(), Request{Input: writeInput(t, "meeting.mkv")})
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
	h.assertWorkDirEmpty(t)
}

func TestRunRejectsInputBeforeModelWork(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)

	_, err := p.Run(context.Background(), Request{Input: writeInput(t, "notes.txt")})
	if !errors.Is(err, ErrUnsupportedInput) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected unsupported input validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), extract.SupportedList()) {
		t.Fatalf("expected supported list in error, got %v", err)
	}

	_, err = p.Run(context.Background(), Request{Input: filepath.Join(t.TempDir(), "missing.mp4")})
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
	if len(h.diarizer.Loads()) != 0 || h.transcriber.LoadCount() != 0 {
		t.Fatal("models must not load for rejected inputs")
	}
}

func TestRunExtractionFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.ffmpegErr = errors.New("exit status 1")
	p := h.pipeline(t)

	_, err := p.Run(context.Background(), Request{Input: writeInput(t, "meeting.mp4")})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	h.assertWorkDirEmpty(t)
}

func TestRunModelLoadFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{turn(0, time.Second, "A")}
	h.transcriber.LoadErr = services.Wrap(services.ErrConfiguration, "models", "load", "gated", nil)
	p := h.pipeline(t)
	input := writeInput(t, "call.wav")

	if _, err := p.Run(context.Background(), Request{Input: input}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected load failure, got %v", err)
	}
	if p.Loader().State() != models.Unloaded {
		t.Fatal("loader must stay unloaded after a failure")
	}
	if len(h.diarizer.Inputs()) != 0 {
		t.Fatal("diarization must not run after a load failure")
	}

	h.transcriber.LoadErr = nil
	if _, err := p.Run(context.Background(), Request{Input: input}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if p.Loader().State() != models.Loaded {
		t.Fatal("expected loaded state after success")
	}
	if _, err := p.Run(context.Background(), Request{Input: input}); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if got := len(h.diarizer.Loads()); got != 2 {
		t.Fatalf("expected 2 load attempts, got %d", got)
	}
}

func TestRunDiarizationFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Err = services.Wrap(services.ErrExternalTool, "models", "diarize", "", errors.New("oom"))
	p := h.pipeline(t)

	if _, err := p.Run(context.Background(), Request{Input: writeInput(t, "call.wav")}); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected diarization error, got %v", err)
	}
	if len(h.transcriber.Clips()) != 0 {
		t.Fatal("no clip should be transcribed after diarization fails")
	}
}

func TestRunSelectsDevice(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{turn(0, time.Second, "A")}
	p := h.pipeline(t, func(_ *Config, d *Deps) {
		d.Prober = testsupport.FixedProber{device.MPS}
	})

	res, err := p.Run(context.Background(), Request{Input: writeInput(t, "call.wav")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Device != device.MPS {
		t.Fatalf("expected mps, got %s", res.Device)
	}
	if !slices.Equal(h.diarizer.Loads(), []device.Kind{device.MPS}) {
		t.Fatalf("unexpected load devices %v", h.diarizer.Loads())
	}
	if res.Backend != "fake-transcriber" {
		t.Fatalf("expected backend from transcriber name, got %q", res.Backend)
	}
}

func TestRunBusy(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{turn(0, time.Second, "A")}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.transcriber.Respond = func(int, waveform.Clip, transcribe.Options) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return "text", nil
	}
	p := h.pipeline(t)
	input := writeInput(t, "call.wav")

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), Request{Input: input})
		done <- err
	}()
	<-started

	if _, err := p.Run(context.Background(), Request{Input: input}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	h := newHarness(t)
	h.diarizer.Turns = []transcript.Turn{turn(0, time.Second, "A"), turn(time.Second, 2*time.Second, "B")}
	ctx, cancel := context.WithCancel(context.Background())
	h.transcriber.Respond = func(int, waveform.Clip, transcribe.Options) (string, error) {
		cancel()
		return "", context.Canceled
	}
	p := h.pipeline(t)

	_, err := p.Run(ctx, Request{Input: writeInput(t, "call.wav")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := len(h.transcriber.Clips()); got != 1 {
		t.Fatalf("expected the run to stop after cancellation, got %d calls", got)
	}
	h.assertWorkDirEmpty(t)
}

func TestValidateInput(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "MEETING.MOV")
	testsupport.WriteFile(t, good, 10)
	if err := ValidateInput(good); err != nil {
		t.Fatalf("uppercase extension should be accepted: %v", err)
	}
	if err := ValidateInput(dir); !errors.Is(err, ErrUnsupportedInput) {
		t.Fatalf("directory should be rejected, got %v", err)
	}
}
