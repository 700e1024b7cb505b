package waveform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"minutes/internal/media/extract"
)

// ErrEmptySpan is returned when a crop range contains no audio.
var ErrEmptySpan = errors.New("empty audio span")

// resampleQuality is the beep.Resample interpolation quality.
const resampleQuality = 4

// wavHeaderSize is the size of a canonical PCM WAV header.
const wavHeaderSize = 44

// Clip is a cropped span of the track written as a mono WAV file.
type Clip struct {
	Path       string
	Start      time.Duration
	End        time.Duration
	SampleRate int
}

// Duration returns the clip length.
func (c Clip) Duration() time.Duration {
	return c.End - c.Start
}

// Samples decodes the clip into mono float32 samples in [-1, 1].
func (c Clip) Samples() ([]float32, error) {
	samples, _, err := ReadMonoWAV(c.Path)
	return samples, err
}

// Source crops spans out of an audio track.
type Source interface {
	Crop(ctx context.Context, start, end time.Duration, dest string) (Clip, error)
	// Duration returns the track length, or 0 when it is unknown.
	Duration() time.Duration
	Close() error
}

// CommandRunner executes a command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Options configures Open.
type Options struct {
	FFmpegBinary string
	// Duration is the known track length for non-WAV sources, used to clamp
	// crop ranges.
	Duration time.Duration
	Runner   CommandRunner
}

// errUndecodable marks WAV files beep cannot decode, such as IEEE float or
// extensible-format tracks.
var errUndecodable = errors.New("wav encoding not decodable in process")

// Open prepares path for cropping. Integer PCM WAV tracks are decoded into
// memory once; other formats, including WAV encodings beep cannot read, are
// cut with ffmpeg on each Crop.
func Open(ctx context.Context, path string, sampleRate int, opts Options) (Source, error) {
	if sampleRate <= 0 {
		sampleRate = extract.DefaultSampleRate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if extract.Ext(path) == ".wav" {
		source, err := openBuffer(path, sampleRate)
		if err == nil {
			return source, nil
		}
		if !errors.Is(err, errUndecodable) {
			return nil, err
		}
	}
	binary := strings.TrimSpace(opts.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	run := opts.Runner
	if run == nil {
		run = runCommand
	}
	return &ffmpegSource{path: path, sampleRate: sampleRate, duration: opts.Duration, binary: binary, run: run}, nil
}

type bufferSource struct {
	buffer     *beep.Buffer
	sampleRate int
}

func openBuffer(path string, sampleRate int) (*bufferSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}
	defer file.Close()

	streamer, format, err := wav.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode track %s: %w: %w", path, errUndecodable, err)
	}
	defer streamer.Close()

	target := beep.SampleRate(sampleRate)
	var source beep.Streamer = streamer
	if format.SampleRate != target {
		source = beep.Resample(resampleQuality, format.SampleRate, target, streamer)
	}
	buffer := beep.NewBuffer(monoFormat(sampleRate))
	buffer.Append(source)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("read track %s: %w", path, err)
	}
	return &bufferSource{buffer: buffer, sampleRate: sampleRate}, nil
}

func (s *bufferSource) Duration() time.Duration {
	return s.buffer.Format().SampleRate.D(s.buffer.Len())
}

func (s *bufferSource) Crop(ctx context.Context, start, end time.Duration, dest string) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	rate := s.buffer.Format().SampleRate
	from := clampIndex(rate.N(start), s.buffer.Len())
	to := clampIndex(rate.N(end), s.buffer.Len())
	if to <= from {
		return Clip{}, fmt.Errorf("crop %v-%v: %w", start, end, ErrEmptySpan)
	}

	file, err := os.Create(dest)
	if err != nil {
		return Clip{}, fmt.Errorf("create clip: %w", err)
	}
	if err := wav.Encode(file, s.buffer.Streamer(from, to), s.buffer.Format()); err != nil {
		_ = file.Close()
		return Clip{}, fmt.Errorf("encode clip: %w", err)
	}
	if err := file.Close(); err != nil {
		return Clip{}, fmt.Errorf("close clip: %w", err)
	}
	return Clip{Path: dest, Start: rate.D(from), End: rate.D(to), SampleRate: s.sampleRate}, nil
}

func (s *bufferSource) Close() error {
	return nil
}

func clampIndex(n, length int) int {
	if n < 0 {
		return 0
	}
	if n > length {
		return length
	}
	return n
}

type ffmpegSource struct {
	path       string
	sampleRate int
	duration   time.Duration
	binary     string
	run        CommandRunner
}

func (s *ffmpegSource) Duration() time.Duration {
	return s.duration
}

func (s *ffmpegSource) Crop(ctx context.Context, start, end time.Duration, dest string) (Clip, error) {
	if start < 0 {
		start = 0
	}
	if s.duration > 0 && end > s.duration {
		end = s.duration
	}
	if end <= start {
		return Clip{}, fmt.Errorf("crop %v-%v: %w", start, end, ErrEmptySpan)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(end - start),
		"-i", s.path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(s.sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
	output, err := s.run(ctx, s.binary, args...)
	if err != nil {
		_ = os.Remove(dest)
		return Clip{}, fmt.Errorf("ffmpeg crop: %w: %s", err, strings.TrimSpace(string(output)))
	}
	info, err := os.Stat(dest)
	if err != nil {
		return Clip{}, fmt.Errorf("ffmpeg crop produced no output: %w", err)
	}
	if info.Size() <= wavHeaderSize {
		_ = os.Remove(dest)
		return Clip{}, fmt.Errorf("crop %v-%v past end of track: %w", start, end, ErrEmptySpan)
	}
	return Clip{Path: dest, Start: start, End: end, SampleRate: s.sampleRate}, nil
}

func (s *ffmpegSource) Close() error {
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
