package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"minutes/internal/language"
	"minutes/internal/logging"
	"minutes/internal/media/ffprobe"
	"minutes/internal/services"
	"minutes/internal/tempfile"
)

// ErrNoAudioTrack is returned when a video container has no audio stream.
var ErrNoAudioTrack = errors.New("no audio track")

// DefaultSampleRate is the rate the diarization and recognition models expect.
const DefaultSampleRate = 16000

// Track is the audio file handed to the models.
type Track struct {
	Path string
	// Derived is true when Path is a temp file produced by extraction.
	Derived bool
	// Duration is the probed container duration, when known.
	Duration time.Duration
}

// CommandRunner executes a command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor prepares audio tracks for the pipeline.
type Extractor struct {
	ffmpegBinary  string
	ffprobeBinary string
	sampleRate    int
	run           CommandRunner
	probe         ffprobe.Runner
	language      string
	logger        *slog.Logger
}

// New constructs an extractor. Empty binaries default to ffmpeg and ffprobe;
// a non-positive sample rate defaults to 16 kHz.
func New(ffmpegBinary, ffprobeBinary string, sampleRate int, logger *slog.Logger) *Extractor {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Extractor{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		sampleRate:    sampleRate,
		run:           runCommand,
		logger:        logging.NewComponentLogger(logger, "extract"),
	}
}

// WithCommandRunner overrides the ffmpeg runner (primarily for tests).
func (e *Extractor) WithCommandRunner(run CommandRunner) *Extractor {
	if run != nil {
		e.run = run
	}
	return e
}

// WithProbeRunner overrides the ffprobe runner (primarily for tests).
func (e *Extractor) WithProbeRunner(run ffprobe.Runner) *Extractor {
	e.probe = run
	return e
}

// WithLanguage sets the expected spoken language. A video whose first audio
// stream is tagged with a different language is still extracted, with a
// warning.
func (e *Extractor) WithLanguage(code string) *Extractor {
	e.language = code
	return e
}

// SampleRate returns the extraction sample rate.
func (e *Extractor) SampleRate() int {
	return e.sampleRate
}

// Prepare returns an audio track for input. Audio inputs pass through
// untouched. Video inputs are probed and their first audio stream is
// converted to mono PCM WAV in a temp file owned by temps.
func (e *Extractor) Prepare(ctx context.Context, input string, temps *tempfile.Set) (Track, error) {
	if !IsVideo(input) {
		return Track{Path: input}, nil
	}
	if temps == nil {
		return Track{}, errors.New("extract: temp set is required for video inputs")
	}

	probe, err := ffprobe.InspectWith(ctx, e.probe, e.ffprobeBinary, input)
	if err != nil {
		return Track{}, services.Wrap(services.ErrExternalTool, "extract", "ffprobe", "inspect input", err)
	}
	if probe.AudioStreamCount() == 0 {
		return Track{}, services.Wrap(services.ErrValidation, "extract", "select stream", input, ErrNoAudioTrack)
	}

	e.checkLanguage(input, probe.AudioStreams()[0])

	file, err := temps.Create("audio-*.wav")
	if err != nil {
		return Track{}, services.Wrap(services.ErrTransient, "extract", "allocate", "", err)
	}

	start := time.Now()
	output, err := e.run(ctx, e.ffmpegBinary, BuildArgs(input, file.Path(), e.sampleRate)...)
	if err == nil {
		err = checkOutput(file.Path())
	}
	if err != nil {
		_ = file.Remove()
		if ctx.Err() != nil {
			return Track{}, ctx.Err()
		}
		detail := strings.TrimSpace(string(output))
		return Track{}, services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", detail, err)
	}

	e.logger.Debug("audio extracted",
		logging.String("source", input),
		logging.String("dest", file.Path()),
		logging.Int("sample_rate", e.sampleRate),
		logging.Duration("elapsed", time.Since(start)),
	)
	return Track{Path: file.Path(), Derived: true, Duration: probe.Duration()}, nil
}

func (e *Extractor) checkLanguage(input string, stream ffprobe.Stream) {
	if e.language == "" || language.Matches(stream.Tags.Language, e.language) {
		return
	}
	logging.WarnWithContext(e.logger, "audio stream language differs from configured language", "audio_language_mismatch",
		logging.String("source", input),
		logging.String("stream_language", language.DisplayName(stream.Tags.Language)),
		logging.String("configured_language", language.DisplayName(e.language)),
		logging.String(logging.FieldErrorHint, "set pipeline.language to the spoken language"),
	)
}

// BuildArgs returns the ffmpeg arguments that convert the first audio stream
// of source into mono 16-bit PCM at sampleRate.
func BuildArgs(source, dest string, sampleRate int) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("ffmpeg produced an empty file")
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
