package workflow

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"minutes/internal/config"
	"minutes/internal/fileutil"
	"minutes/internal/history"
	"minutes/internal/logging"
	"minutes/internal/notifications"
	"minutes/internal/pipeline"
	"minutes/internal/report"
	"minutes/internal/runlock"
	"minutes/internal/services"
)

// Sources recorded in run history.
const (
	SourceCLI = "cli"
	SourceWeb = "web"
)

// Pipeline is the processing surface the runner drives.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Backend() string
}

// Job describes one transcription request.
type Job struct {
	// Input is the file on disk that is processed.
	Input string
	// InputName is shown in the report header; defaults to the base name of Input.
	InputName string
	// Output receives the report. Empty keeps the report in memory only.
	Output string
	Source string
	RunID  string

	Progress  func(percent int, message string)
	OnSegment func(done, total int)
}

// Outcome is the result of a successful job.
type Outcome struct {
	RunID      string
	Result     *pipeline.Result
	Report     string
	OutputPath string
	Speakers   int
	Segments   int
	// Previous is the latest earlier successful run of the same input, if any.
	Previous *history.Run
}

// Runner coordinates a pipeline run with its surrounding bookkeeping.
type Runner struct {
	cfg      *config.Config
	pipeline Pipeline
	history  *history.Store
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithHistory records runs in store. A nil store disables history.
func WithHistory(store *history.Store) Option {
	return func(r *Runner) { r.history = store }
}

// WithNotifier overrides the notification service.
func WithNotifier(svc notifications.Service) Option {
	return func(r *Runner) {
		if svc != nil {
			r.notifier = svc
		}
	}
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs a runner for cfg around p.
func New(cfg *config.Config, p Pipeline, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:      cfg,
		pipeline: p,
		notifier: notifications.NewService(cfg),
		logger:   logging.NewComponentLogger(logger, "workflow"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsBusy reports whether err means another run holds the pipeline or the
// cross-process lock.
func IsBusy(err error) bool {
	return errors.Is(err, pipeline.ErrBusy) || errors.Is(err, runlock.ErrLocked)
}

// Transcribe runs job and writes its report.
func (r *Runner) Transcribe(ctx context.Context, job Job) (*Outcome, error) {
	if strings.TrimSpace(job.RunID) == "" {
		job.RunID = uuid.NewString()
	}
	if job.InputName == "" {
		job.InputName = filepath.Base(job.Input)
	}
	if job.Source == "" {
		job.Source = SourceCLI
	}
	ctx = services.WithRunID(ctx, job.RunID)
	logger := logging.WithContext(ctx, r.logger)

	if err := pipeline.ValidateInput(job.Input); err != nil {
		return nil, err
	}

	if r.cfg != nil && r.cfg.Pipeline.ExclusiveLock {
		lock, err := runlock.Acquire(r.cfg.LockPath())
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("run lock release failed", logging.Error(err))
			}
		}()
	}

	outcome := &Outcome{RunID: job.RunID}
	hash := r.hashInput(logger, job.Input)
	outcome.Previous = r.previousRun(ctx, logger, hash)
	r.beginHistory(ctx, logger, job, hash)

	result, err := r.pipeline.Run(ctx, pipeline.Request{
		Input:     job.Input,
		RunID:     job.RunID,
		Progress:  job.Progress,
		OnSegment: job.OnSegment,
	})
	if err != nil {
		r.finishFailed(ctx, logger, job, err)
		return nil, err
	}

	if job.Progress != nil {
		job.Progress(pipeline.ProgressRendering, "結果を生成中...")
	}
	text := report.Build(result.Segments, job.InputName, r.now())
	if job.Output != "" {
		if err := fileutil.WriteFileAtomic(job.Output, []byte(text), 0o644); err != nil {
			wrapped := services.Wrap(services.ErrConfiguration, "report", "write", job.Output, err)
			r.finishFailed(ctx, logger, job, wrapped)
			return nil, wrapped
		}
	}
	if job.Progress != nil {
		job.Progress(pipeline.ProgressDone, "処理完了！")
	}

	stats := report.Stats(result.Segments)
	outcome.Result = result
	outcome.Report = text
	outcome.OutputPath = job.Output
	outcome.Speakers = stats.Speakers
	outcome.Segments = stats.Segments

	r.finishSucceeded(ctx, logger, job, outcome)
	r.notifyCompleted(ctx, logger, job, outcome)
	return outcome, nil
}

func (r *Runner) hashInput(logger *slog.Logger, path string) string {
	if r.history == nil {
		return ""
	}
	hash, err := fileutil.HashFile(path)
	if err != nil {
		logger.Warn("input hash failed; repeat detection disabled for this run",
			logging.Error(err),
			logging.String(logging.FieldEventType, "input_hash_failed"),
		)
		return ""
	}
	return hash
}

func (r *Runner) previousRun(ctx context.Context, logger *slog.Logger, hash string) *history.Run {
	if r.history == nil || hash == "" {
		return nil
	}
	prev, err := r.history.LatestByHash(ctx, hash)
	if err != nil {
		logger.Debug("history lookup failed", logging.Error(err))
		return nil
	}
	if prev != nil {
		logger.Info("input was transcribed before",
			logging.String(logging.FieldEventType, "repeat_input"),
			logging.String("previous_run", prev.ID),
			logging.String("previous_output", prev.OutputPath),
		)
	}
	return prev
}

func (r *Runner) beginHistory(ctx context.Context, logger *slog.Logger, job Job, hash string) {
	if r.history == nil {
		return
	}
	backend := ""
	if r.pipeline != nil {
		backend = r.pipeline.Backend()
	}
	inputPath := job.Input
	if job.Source == SourceWeb {
		// Staged uploads are removed when the job ends.
		inputPath = ""
	}
	if _, err := r.history.Begin(ctx, history.Run{
		ID:        job.RunID,
		InputPath: inputPath,
		InputName: job.InputName,
		InputHash: hash,
		Source:    job.Source,
		Backend:   backend,
		StartedAt: r.now(),
	}); err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_write_failed",
			logging.String(logging.FieldErrorHint, "check the history database path"),
			logging.String(logging.FieldImpact, "this run will not appear in minutes history"),
			logging.Error(err),
		)
	}
}

func (r *Runner) finishSucceeded(ctx context.Context, logger *slog.Logger, job Job, outcome *Outcome) {
	if r.history == nil {
		return
	}
	result := outcome.Result
	r.finish(ctx, logger, job.RunID, history.Outcome{
		Status:        history.StatusSucceeded,
		OutputPath:    outcome.OutputPath,
		Speakers:      outcome.Speakers,
		Segments:      outcome.Segments,
		SkippedShort:  result.Skipped.Short,
		SkippedEmpty:  result.Skipped.Empty,
		SkippedFailed: result.Skipped.Failed,
		Backend:       result.Backend,
		Device:        result.Device.String(),
		Report:        outcome.Report,
	})
}

func (r *Runner) finishFailed(ctx context.Context, logger *slog.Logger, job Job, runErr error) {
	canceled := errors.Is(runErr, context.Canceled)
	if r.history != nil {
		status := history.StatusFailed
		if canceled {
			status = history.StatusCanceled
		}
		// The run context may already be canceled; the record still needs writing.
		r.finish(context.WithoutCancel(ctx), logger, job.RunID, history.Outcome{
			Status:       status,
			ErrorKind:    services.Kind(runErr),
			ErrorMessage: runErr.Error(),
		})
	}
	if !canceled && !IsBusy(runErr) {
		r.notifyFailed(ctx, logger, job, runErr)
	}
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, id string, outcome history.Outcome) {
	if err := r.history.Finish(ctx, id, outcome); err != nil {
		logging.WarnWithContext(logger, "history update failed", "history_write_failed",
			logging.String(logging.FieldErrorHint, "check the history database path"),
			logging.Error(err),
		)
	}
}
