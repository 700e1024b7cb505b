package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"minutes/internal/config"
	"minutes/internal/device"
	"minutes/internal/metrics"
	"minutes/internal/pipeline"
	"minutes/internal/testsupport"
	"minutes/internal/transcript"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	mediaDir   string
}

// setupCLITestEnv writes a config rooted in a temp dir. extra is appended to
// the generated TOML.
func setupCLITestEnv(t *testing.T, extra string, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("HF_TOKEN", "hf_test")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	mediaDir := filepath.Join(base, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatalf("mkdir media: %v", err)
	}

	configPath := filepath.Join(base, "minutes.toml")
	writeTestConfig(t, configPath, cfg, extra)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		mediaDir:   mediaDir,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config, extra string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
work_dir = %q
state_dir = %q
log_dir = %q

[pipeline]
min_segment_duration = 0.1
device_priority = ["cpu"]

[history]
enabled = true
path = %q

[logging]
level = "error"
%s
`, cfg.Paths.WorkDir, cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.History.Path, extra)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}

type stubPipeline struct {
	mu       sync.Mutex
	result   *pipeline.Result
	err      error
	requests []pipeline.Request
	closed   bool
	cfg      *config.Config
}

func (s *stubPipeline) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if req.Progress != nil {
		req.Progress(pipeline.ProgressPreparing, "音声を準備中...")
	}
	if req.OnSegment != nil {
		req.OnSegment(1, 2)
		req.OnSegment(2, 2)
	}
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.RunID = req.RunID
	res.Input = req.Input
	return &res, nil
}

func (s *stubPipeline) Backend() string { return "stub" }

func (s *stubPipeline) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// installPipeline replaces buildPipeline for the duration of the test.
func installPipeline(t *testing.T, stub *stubPipeline) {
	t.Helper()
	previous := buildPipeline
	buildPipeline = func(cfg *config.Config, _ *metrics.Metrics, _ *slog.Logger) (transcriptionPipeline, error) {
		stub.cfg = cfg
		return stub, nil
	}
	t.Cleanup(func() { buildPipeline = previous })
}

func twoSpeakerResult() *pipeline.Result {
	return &pipeline.Result{
		Turns: 3,
		Segments: []transcript.Segment{
			transcript.NewSegment(transcript.Turn{Start: 2 * time.Second, End: 4 * time.Second, Speaker: "SPEAKER_00"}, "本日の議題です"),
			transcript.NewSegment(transcript.Turn{Start: 4 * time.Second, End: 7 * time.Second, Speaker: "SPEAKER_01"}, "承知しました"),
		},
		Skipped: pipeline.Skipped{Short: 1},
		Device:  device.CPU,
		Backend: "stub",
	}
}

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testsupport.WriteFile(t, path, 128)
	return path
}
