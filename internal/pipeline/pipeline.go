package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"minutes/internal/device"
	"minutes/internal/logging"
	"minutes/internal/media/extract"
	"minutes/internal/media/waveform"
	"minutes/internal/metrics"
	"minutes/internal/models"
	"minutes/internal/services"
	"minutes/internal/tempfile"
	"minutes/internal/transcribe"
	"minutes/internal/transcript"
)

var (
	// ErrBusy is returned when a run is already in progress on this pipeline.
	ErrBusy = errors.New("a transcription is already running")
	// ErrNoSegments is returned when every turn was filtered out.
	ErrNoSegments = errors.New("no transcribable segments")
)

// Progress checkpoints shared with the front ends.
const (
	ProgressPreparing = 10
	ProgressModels    = 30
	ProgressAnalyzing = 50
	ProgressRendering = 80
	ProgressDone      = 100
)

// Stage names attached to logs and the stage duration metric.
const (
	StagePrepare    = "prepare"
	StageLoad       = "load_models"
	StageDiarize    = "diarize"
	StageTranscribe = "transcribe"
)

// Config holds the per-run processing settings.
type Config struct {
	SampleRate         int
	MinSegmentDuration time.Duration
	Language           string
	Task               string
	DevicePriority     []device.Kind
	WorkDir            string
	FFmpegBinary       string
}

// Deps are the collaborators a pipeline drives.
type Deps struct {
	Extractor   *extract.Extractor
	Diarizer    transcribe.Diarizer
	Transcriber transcribe.Transcriber
	Prober      device.Prober
	Backend     string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	// CropRunner replaces ffmpeg for non-WAV sources in tests.
	CropRunner waveform.CommandRunner
}

// Request is one transcription job.
type Request struct {
	Input string
	// RunID is generated when empty.
	RunID string
	// Progress receives the 10/30/50 checkpoints.
	Progress func(percent int, message string)
	// OnSegment is called after each turn is handled.
	OnSegment func(done, total int)
}

// Skipped counts turns dropped by the segment filter.
type Skipped struct {
	Short  int
	Empty  int
	Failed int
}

// Total returns the number of dropped turns.
func (s Skipped) Total() int { return s.Short + s.Empty + s.Failed }

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Input    string
	Track    extract.Track
	Turns    int
	Segments []transcript.Segment
	Skipped  Skipped
	Device   device.Kind
	Backend  string
	Duration time.Duration
}

// Speakers returns the distinct labels in first-appearance order.
func (r *Result) Speakers() []string {
	return transcript.Speakers(r.Segments)
}

// Pipeline turns a recording into transcript segments. It keeps no state
// between runs except the model loader.
type Pipeline struct {
	cfg         Config
	extractor   *extract.Extractor
	loader      *models.Loader
	diarizer    transcribe.Diarizer
	transcriber transcribe.Transcriber
	backend     string
	metrics     *metrics.Metrics
	logger      *slog.Logger
	cropRunner  waveform.CommandRunner

	running sync.Mutex
}

// New builds a pipeline around deps.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Extractor == nil {
		return nil, errors.New("pipeline: extractor required")
	}
	if deps.Diarizer == nil || deps.Transcriber == nil {
		return nil, errors.New("pipeline: diarizer and transcriber required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = extract.DefaultSampleRate
	}
	if cfg.MinSegmentDuration < 0 {
		cfg.MinSegmentDuration = 0
	}
	if strings.TrimSpace(cfg.Task) == "" {
		cfg.Task = "transcribe"
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	met := deps.Metrics
	if met == nil {
		met = metrics.Noop()
	}
	prober := deps.Prober
	if prober == nil {
		prober = device.NewSystemProber()
	}
	backend := deps.Backend
	if backend == "" {
		backend = deps.Transcriber.Name()
	}
	return &Pipeline{
		cfg:         cfg,
		extractor:   deps.Extractor,
		loader:      models.NewLoader(cfg.DevicePriority, prober, logger, deps.Diarizer, deps.Transcriber),
		diarizer:    deps.Diarizer,
		transcriber: deps.Transcriber,
		backend:     backend,
		metrics:     met,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		cropRunner:  deps.CropRunner,
	}, nil
}

// Loader exposes the model lifecycle for status reporting.
func (p *Pipeline) Loader() *models.Loader { return p.loader }

// Backend names the transcription backend.
func (p *Pipeline) Backend() string { return p.backend }

// Close releases loaded models.
func (p *Pipeline) Close() error { return p.loader.Close() }

// Run processes one input. Only one run may be active at a time; a
// concurrent call returns ErrBusy without doing any work.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if !p.running.TryLock() {
		return nil, ErrBusy
	}
	defer p.running.Unlock()

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, p.logger)
	start := time.Now()

	result, err := p.run(ctx, req, runID, logger)
	elapsed := time.Since(start)
	switch {
	case err == nil:
		result.Duration = elapsed
		p.metrics.RecordRun(ctx, metrics.StatusSucceeded, elapsed)
		logger.Info("transcription completed",
			logging.String(logging.FieldEventType, "run_completed"),
			logging.Int("segments", len(result.Segments)),
			logging.Int("speakers", len(result.Speakers())),
			logging.Int("skipped", result.Skipped.Total()),
			logging.Duration("elapsed", elapsed),
		)
	case errors.Is(err, context.Canceled):
		p.metrics.RecordRun(ctx, metrics.StatusCanceled, elapsed)
		logger.Warn("transcription canceled", logging.String(logging.FieldEventType, "run_canceled"))
	default:
		p.metrics.RecordRun(ctx, metrics.StatusFailed, elapsed)
		logging.ErrorWithContext(logger, "transcription failed", "run_failed",
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
		)
	}
	return result, err
}

func (p *Pipeline) run(ctx context.Context, req Request, runID string, logger *slog.Logger) (*Result, error) {
	if err := ValidateInput(req.Input); err != nil {
		return nil, err
	}
	report := func(percent int, message string) {
		if req.Progress != nil {
			req.Progress(percent, message)
		}
	}

	temps, err := tempfile.NewSet(p.cfg.WorkDir, "minutes-run-")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, StagePrepare, "temp dir", p.cfg.WorkDir, err)
	}
	defer func() {
		if cerr := temps.Cleanup(); cerr != nil {
			logging.WarnWithContext(logger, "temp cleanup failed", "temp_cleanup_failed",
				logging.String("dir", temps.Dir()),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
				logging.Error(cerr),
			)
		}
	}()

	report(ProgressPreparing, "音声を準備中...")
	stageStart := time.Now()
	prepCtx := services.WithStage(ctx, StagePrepare)
	track, err := p.extractor.Prepare(prepCtx, req.Input, temps)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordStage(ctx, StagePrepare, stageStart)
	logging.WithContext(prepCtx, p.logger).Info("audio track ready",
		logging.String("path", track.Path),
		logging.Bool("derived", track.Derived),
	)

	report(ProgressModels, "モデルを読み込み中...")
	stageStart = time.Now()
	dev, err := p.loader.Ensure(services.WithStage(ctx, StageLoad))
	if err != nil {
		return nil, err
	}
	p.metrics.RecordStage(ctx, StageLoad, stageStart)

	report(ProgressAnalyzing, "話者を分析中...")
	stageStart = time.Now()
	diarizeCtx := services.WithStage(ctx, StageDiarize)
	turns, err := p.diarizer.Diarize(diarizeCtx, track.Path)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordStage(ctx, StageDiarize, stageStart)
	logging.WithContext(diarizeCtx, p.logger).Info("diarization complete", logging.Int("turns", len(turns)))

	stageStart = time.Now()
	source, err := waveform.Open(ctx, track.Path, p.extractor.SampleRate(), waveform.Options{
		FFmpegBinary: p.cfg.FFmpegBinary,
		Duration:     track.Duration,
		Runner:       p.cropRunner,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, StageTranscribe, "open audio", track.Path, err)
	}
	defer source.Close()

	segments, skipped, err := p.transcribeTurns(services.WithStage(ctx, StageTranscribe), turns, source, temps, req.OnSegment)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordStage(ctx, StageTranscribe, stageStart)
	p.metrics.RecordSegments(ctx, metrics.OutcomeKept, len(segments))
	p.metrics.RecordSegments(ctx, metrics.OutcomeShort, skipped.Short)
	p.metrics.RecordSegments(ctx, metrics.OutcomeEmpty, skipped.Empty)
	p.metrics.RecordSegments(ctx, metrics.OutcomeFailed, skipped.Failed)

	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, StageTranscribe, "filter",
			fmt.Sprintf("%d turns, %d short, %d empty, %d failed", len(turns), skipped.Short, skipped.Empty, skipped.Failed),
			ErrNoSegments)
	}

	return &Result{
		RunID:    runID,
		Input:    req.Input,
		Track:    track,
		Turns:    len(turns),
		Segments: segments,
		Skipped:  skipped,
		Device:   dev,
		Backend:  p.backend,
	}, nil
}

// transcribeTurns walks turns in emission order. Short turns are skipped
// before cropping; crop or recognition failures drop only that turn.
func (p *Pipeline) transcribeTurns(
	ctx context.Context,
	turns []transcript.Turn,
	source waveform.Source,
	temps *tempfile.Set,
	onSegment func(done, total int),
) ([]transcript.Segment, Skipped, error) {
	logger := logging.WithContext(ctx, p.logger)
	sampler := logging.NewProgressSampler(10)
	opts := transcribe.Options{Language: p.cfg.Language, Task: p.cfg.Task}
	segments := make([]transcript.Segment, 0, len(turns))
	var skipped Skipped

	for i, turn := range turns {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}
		text, outcome, err := p.transcribeTurn(ctx, i, turn, source, temps, opts)
		switch outcome {
		case metrics.OutcomeShort:
			skipped.Short++
		case metrics.OutcomeEmpty:
			skipped.Empty++
		case metrics.OutcomeFailed:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, skipped, ctxErr
			}
			skipped.Failed++
			logging.WarnWithContext(logger, "segment skipped", "segment_failed",
				logging.Int("turn", i),
				logging.String("speaker", turn.Speaker),
				logging.String("start", transcript.FormatDuration(turn.Start)),
				logging.String("end", transcript.FormatDuration(turn.End)),
				logging.String(logging.FieldImpact, "segment omitted from the report"),
				logging.Error(err),
			)
		default:
			segments = append(segments, transcript.NewSegment(turn, text))
		}

		done := i + 1
		if onSegment != nil {
			onSegment(done, len(turns))
		}
		if percent := float64(done) * 100 / float64(len(turns)); sampler.ShouldLog(percent, StageTranscribe) {
			logger.Info("transcription progress",
				logging.Int("done", done),
				logging.Int("total", len(turns)),
				logging.Int("kept", len(segments)),
			)
		}
	}
	return segments, skipped, nil
}

func (p *Pipeline) transcribeTurn(
	ctx context.Context,
	index int,
	turn transcript.Turn,
	source waveform.Source,
	temps *tempfile.Set,
	opts transcribe.Options,
) (string, string, error) {
	if turn.Duration() < p.cfg.MinSegmentDuration {
		return "", metrics.OutcomeShort, nil
	}
	dest := filepath.Join(temps.Dir(), fmt.Sprintf("clip-%05d.wav", index))
	file := temps.Track(dest)
	defer func() { _ = file.Remove() }()

	clip, err := source.Crop(ctx, turn.Start, turn.End, dest)
	if err != nil {
		return "", metrics.OutcomeFailed, fmt.Errorf("crop: %w", err)
	}
	text, err := p.transcriber.Transcribe(ctx, clip, opts)
	if err != nil {
		return "", metrics.OutcomeFailed, fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", metrics.OutcomeEmpty, nil
	}
	return text, metrics.OutcomeKept, nil
}
