package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"minutes/internal/config"
	"minutes/internal/deps"
	"minutes/internal/media/extract"
	"minutes/internal/metrics"
	"minutes/internal/pipeline"
	"minutes/internal/preflight"
	"minutes/internal/workflow"
)

type transcribeOptions struct {
	output      string
	minDuration float64
	backend     string
	draft       bool
	noHistory   bool
}

type transcriptionPipeline interface {
	workflow.Pipeline
	Close() error
}

// buildPipeline is swapped in tests to avoid starting model backends.
var buildPipeline = func(cfg *config.Config, met *metrics.Metrics, logger *slog.Logger) (transcriptionPipeline, error) {
	p, err := pipeline.NewFromConfig(cfg, met, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func runTranscribe(cmd *cobra.Command, ctx *commandContext, inputArg string, opts transcribeOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd, cfg, opts); err != nil {
		return err
	}

	input, err := config.ExpandPath(inputArg)
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}
	if err := pipeline.ValidateInput(input); err != nil {
		return inputError(input, err)
	}
	output := strings.TrimSpace(opts.output)
	if output == "" {
		output = siblingPath(input, "_transcript.md")
	} else if output, err = config.ExpandPath(output); err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	if missing := deps.Missing(preflight.CheckSystemDeps(cfg)); len(missing) > 0 {
		return missingDepsError(missing)
	}

	logger, err := ctx.logger()
	if err != nil {
		return err
	}

	runnerOpts := []workflow.Option{}
	if !opts.noHistory {
		store, err := ctx.openHistory()
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
			runnerOpts = append(runnerOpts, workflow.WithHistory(store))
		}
	}

	p, err := buildPipeline(cfg, metrics.Noop(), logger)
	if err != nil {
		return err
	}
	defer p.Close()

	errOut := cmd.ErrOrStderr()
	progress := newProgressReporter(errOut, isTerminal(errOut))
	fmt.Fprintf(errOut, "処理中: %s\n", filepath.Base(input))

	runner := workflow.New(cfg, p, logger, runnerOpts...)
	outcome, err := runner.Transcribe(cmd.Context(), workflow.Job{
		Input:     input,
		Output:    output,
		Source:    workflow.SourceCLI,
		Progress:  progress.stage,
		OnSegment: progress.segment,
	})
	progress.finishBar()
	if err != nil {
		return runError(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "文字起こし完了")
	fmt.Fprintf(out, "話者数: %d名\n", outcome.Speakers)
	fmt.Fprintf(out, "セグメント数: %d個\n", outcome.Segments)
	fmt.Fprintf(out, "出力ファイル: %s\n", outcome.OutputPath)
	if prev := outcome.Previous; prev != nil {
		when := prev.StartedAt.Local().Format("2006-01-02 15:04")
		if prev.OutputPath != "" {
			fmt.Fprintf(out, "同じファイルは %s にも処理されています: %s\n", when, prev.OutputPath)
		} else {
			fmt.Fprintf(out, "同じファイルは %s にも処理されています (run %s)\n", when, shortID(prev.ID))
		}
	}

	if opts.draft {
		path, err := draftMinutes(cmd.Context(), cfg, outcome.Report, siblingPath(input, "_minutes.md"))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "議事録ファイル: %s\n", path)
	}
	return nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config, opts transcribeOptions) error {
	changed := false
	if backend := strings.ToLower(strings.TrimSpace(opts.backend)); backend != "" {
		cfg.Transcription.Backend = backend
		changed = true
	}
	if cmd.Flags().Changed("min-duration") {
		if opts.minDuration < 0 {
			return fmt.Errorf("--min-duration must be >= 0 (got %g)", opts.minDuration)
		}
		cfg.Pipeline.MinSegmentDuration = opts.minDuration
		changed = true
	}
	if !changed {
		return nil
	}
	return cfg.Validate()
}

func inputError(input string, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrInputNotFound):
		return fmt.Errorf("ファイルが見つかりません: %s", input)
	case errors.Is(err, pipeline.ErrUnsupportedInput):
		return fmt.Errorf("サポートされていないファイル形式です: %s\n対応形式: %s", displayExt(input), extract.SupportedList())
	default:
		return err
	}
}

func displayExt(path string) string {
	if ext := extract.Ext(path); ext != "" {
		return ext
	}
	return filepath.Base(path)
}

func runError(err error) error {
	switch {
	case workflow.IsBusy(err):
		return fmt.Errorf("別の文字起こしを処理中です: %w", err)
	case errors.Is(err, pipeline.ErrNoSegments):
		return fmt.Errorf("文字起こしできるセグメントがありませんでした: %w", err)
	default:
		return err
	}
}

func missingDepsError(missing []deps.Status) error {
	parts := make([]string, 0, len(missing))
	for _, status := range missing {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", status.Name, status.Command, status.Detail))
	}
	return fmt.Errorf("required tools unavailable: %s", strings.Join(parts, "; "))
}

// siblingPath returns <dir>/<stem><suffix> for path.
func siblingPath(path, suffix string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(path), stem+suffix)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type progressReporter struct {
	out     io.Writer
	visible bool
	bar     *progressbar.ProgressBar
}

func newProgressReporter(out io.Writer, visible bool) *progressReporter {
	return &progressReporter{out: out, visible: visible}
}

func (p *progressReporter) stage(percent int, message string) {
	p.finishBar()
	fmt.Fprintf(p.out, "[%3d%%] %s\n", percent, message)
}

func (p *progressReporter) segment(done, total int) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("文字起こし中"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetVisibility(p.visible),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progressReporter) finishBar() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	if p.visible {
		fmt.Fprintln(p.out)
	}
	p.bar = nil
}
