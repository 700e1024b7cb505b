package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"minutes/internal/history"
	"minutes/internal/pipeline"
	"minutes/internal/services"
	"minutes/internal/testsupport"
)

func TestTranscribeWritesReportNextToInput(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithStubbedBinaries())
	stub := &stubPipeline{result: twoSpeakerResult()}
	installPipeline(t, stub)
	input := writeMedia(t, env.mediaDir, "meeting.mp4")

	out, errOut, err := runCLI(t, []string{input}, env.configPath)
	if err != nil {
		t.Fatalf("transcribe: %v (stderr: %s)", err, errOut)
	}
	want := filepath.Join(env.mediaDir, "meeting_transcript.md")
	requireContains(t, out, "話者数: 2名")
	requireContains(t, out, "セグメント数: 2個")
	requireContains(t, out, "出力ファイル: "+want)
	requireContains(t, errOut, "[ 80%] 結果を生成中...")
	requireContains(t, errOut, "[100%] 処理完了！")

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	report := string(data)
	requireContains(t, report, "**入力ファイル**: meeting.mp4")
	requireContains(t, report, "**総セグメント数**: 2個")
	requireContains(t, report, "**[00:00:04 - 00:00:07] SPEAKER_01:**")
	if !stub.closed {
		t.Fatal("expected pipeline to be closed")
	}
	if got := stub.cfg.Pipeline.MinSegmentDuration; got != 0.1 {
		t.Fatalf("expected default minimum of 0.1s, got %v", got)
	}
}

func TestTranscribeCustomOutputAndRepeatHint(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithStubbedBinaries())
	installPipeline(t, &stubPipeline{result: twoSpeakerResult()})
	input := writeMedia(t, env.mediaDir, "meeting.wav")
	output := filepath.Join(env.baseDir, "out", "custom.md")

	if _, errOut, err := runCLI(t, []string{input, "-o", output}, env.configPath); err != nil {
		t.Fatalf("first run: %v (%s)", err, errOut)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected custom output: %v", err)
	}

	out, errOut, err := runCLI(t, []string{input, "-o", output}, env.configPath)
	if err != nil {
		t.Fatalf("second run: %v (%s)", err, errOut)
	}
	requireContains(t, out, "同じファイルは")
	requireContains(t, out, output)
}

func TestTranscribeMissingFile(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithStubbedBinaries())
	stub := &stubPipeline{result: twoSpeakerResult()}
	installPipeline(t, stub)
	missing := filepath.Join(env.mediaDir, "nope.mp4")

	_, _, err := runCLI(t, []string{missing}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if err.Error() != "ファイルが見つかりません: "+missing {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if services.ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", services.ExitCode(err))
	}
	if len(stub.requests) != 0 {
		t.Fatal("expected pipeline not to run")
	}
}

func TestTranscribeUnsupportedExtension(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithStubbedBinaries())
	stub := &stubPipeline{result: twoSpeakerResult()}
	installPipeline(t, stub)
	input := writeMedia(t, env.mediaDir, "notes.txt")

	_, _, err := runCLI(t, []string{input}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unsupported input")
	}
	lines := strings.Split(err.Error(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", err.Error())
	}
	requireContains(t, lines[0], ".txt")
	if lines[1] != "対応形式: .mp4, .avi, .mov, .mkv, .webm, .wav, .mp3, .m4a, .flac" {
		t.Fatalf("unexpected supported list line %q", lines[1])
	}
	if services.ExitCode(err) != 1 || len(stub.requests) != 0 {
		t.Fatalf("expected exit 1 without running the pipeline")
	}
	if _, err := os.Stat(filepath.Join(env.mediaDir, "notes_transcript.md")); !os.IsNotExist(err) {
		t.Fatal("expected no report to be written")
	}
}

func TestTranscribeFlagOverrides(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithStubbedBinaries())
	stub := &stubPipeline{result: twoSpeakerResult()}
	installPipeline(t, stub)
	input := writeMedia(t, env.mediaDir, "meeting.m4a")

	if _, errOut, err := runCLI(t, []string{input, "--min-duration", "0.5", "--no-history"}, env.configPath); err != nil {
		t.Fatalf("transcribe: %v (%s)", err, errOut)
	}
	if got := stub.cfg.Pipeline.MinSegmentDuration; got != 0.5 {
		t.Fatalf("expected min duration override 0.5, got %v", got)
	}
	store := testsupport.MustOpenHistory(t, env.cfg)
	runs, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected --no-history to skip recording, got %d runs", len(runs))
	}

	_, _, err = runCLI(t, []string{input, "--backend", "whisper_server"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "transcription.server_url") {
		t.Fatalf("expected backend validation error, got %v", err)
	}
	_, _, err = runCLI(t, []string{input, "--min-duration", "-1"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--min-duration") {
		t.Fatalf("expected min-duration error, got %v", err)
	}
}

func TestTranscribeRequiresTools(t *testing.T) {
	env := setupCLITestEnv(t, "")
	installPipeline(t, &stubPipeline{result: twoSpeakerResult()})
	input := writeMedia(t, env.mediaDir, "meeting.mp4")
	t.Setenv("PATH", t.TempDir())

	_, _, err := runCLI(t, []string{input}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "required tools unavailable") {
		t.Fatalf("expected missing tools error, got %v", err)
	}
	requireContains(t, err.Error(), "FFmpeg")
}

func TestTranscribeNoSegmentsFails(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithStubbedBinaries())
	installPipeline(t, &stubPipeline{err: services.Wrap(services.ErrValidation, "filter", "segments", "", pipeline.ErrNoSegments)})
	input := writeMedia(t, env.mediaDir, "silence.wav")

	_, _, err := runCLI(t, []string{input}, env.configPath)
	if err == nil || !errors.Is(err, pipeline.ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
	requireContains(t, err.Error(), "セグメントがありませんでした")
	if _, err := os.Stat(filepath.Join(env.mediaDir, "silence_transcript.md")); !os.IsNotExist(err) {
		t.Fatal("expected no report for an empty result")
	}

	store := testsupport.MustOpenHistory(t, env.cfg)
	runs, err := store.List(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one recorded run, got %d (%v)", len(runs), err)
	}
	if runs[0].Status != history.StatusFailed {
		t.Fatalf("expected failed run, got %s", runs[0].Status)
	}
}

func TestTranscribeWithDraft(t *testing.T) {
	var requests atomic.Int32
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "アクションアイテム") {
			t.Errorf("expected minutes prompt in request body")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "# 議事録\n\n- 議題の確認"}}},
		})
	}))
	t.Cleanup(llmServer.Close)

	extra := "\n[llm]\napi_key = \"or-test\"\nbase_url = \"" + llmServer.URL + "\"\n"
	env := setupCLITestEnv(t, extra, testsupport.WithStubbedBinaries())
	installPipeline(t, &stubPipeline{result: twoSpeakerResult()})
	input := writeMedia(t, env.mediaDir, "meeting.mp4")

	out, errOut, err := runCLI(t, []string{input, "--draft"}, env.configPath)
	if err != nil {
		t.Fatalf("transcribe --draft: %v (%s)", err, errOut)
	}
	minutesPath := filepath.Join(env.mediaDir, "meeting_minutes.md")
	requireContains(t, out, "議事録ファイル: "+minutesPath)
	data, err := os.ReadFile(minutesPath)
	if err != nil {
		t.Fatalf("read minutes: %v", err)
	}
	if string(data) != "# 議事録\n\n- 議題の確認\n" {
		t.Fatalf("unexpected minutes %q", data)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected one LLM request, got %d", requests.Load())
	}
}

func TestRootWithoutArgsShowsHelp(t *testing.T) {
	env := setupCLITestEnv(t, "")
	out, _, err := runCLI(t, nil, env.configPath)
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	requireContains(t, out, "minutes <input_file>")
	requireContains(t, out, "--min-duration")
}

func TestSiblingPaths(t *testing.T) {
	if got := siblingPath("/data/会議.mp4", "_transcript.md"); got != "/data/会議_transcript.md" {
		t.Fatalf("unexpected transcript path %q", got)
	}
	if got := minutesPathFor("/data/meeting_transcript.md"); got != "/data/meeting_minutes.md" {
		t.Fatalf("unexpected minutes path %q", got)
	}
	if got := minutesPathFor("/data/notes.md"); got != "/data/notes_minutes.md" {
		t.Fatalf("unexpected minutes path %q", got)
	}
}
