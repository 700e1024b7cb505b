package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBeginFinishGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.Begin(ctx, Run{InputPath: "/data/meeting.mp4", InputHash: "abc", Backend: "local"})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if run.ID == "" || run.InputName != "meeting.mp4" || run.Status != StatusRunning || run.Source != "cli" {
		t.Fatalf("unexpected begun run %+v", run)
	}
	if run.FinishedAt != nil || run.Elapsed() != 0 {
		t.Fatal("running record must not be finished")
	}

	err = store.Finish(ctx, run.ID, Outcome{
		Status:       StatusSucceeded,
		OutputPath:   "/data/meeting_transcript.md",
		Speakers:     2,
		Segments:     5,
		SkippedShort: 1,
		Device:       "cpu",
		Report:       "# 音声文字起こし結果\n",
	})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusSucceeded || got.Segments != 5 || got.Speakers != 2 || got.SkippedShort != 1 {
		t.Fatalf("unexpected finished run %+v", got)
	}
	if got.Backend != "local" || got.Device != "cpu" {
		t.Fatalf("expected backend kept and device set, got %q %q", got.Backend, got.Device)
	}
	if got.FinishedAt == nil || got.Report == "" {
		t.Fatalf("expected finish time and report, got %+v", got)
	}

	byPrefix, err := store.Get(ctx, run.ID[:8])
	if err != nil || byPrefix.ID != run.ID {
		t.Fatalf("prefix lookup: %v %+v", err, byPrefix)
	}
}

func TestFinishRequiresTerminalStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	run, err := store.Begin(ctx, Run{InputPath: "a.wav"})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.Finish(ctx, run.ID, Outcome{Status: StatusRunning}); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
	if err := store.Finish(ctx, "missing-id", Outcome{Status: StatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.wav", "b.wav", "c.wav"} {
		if _, err := store.Begin(ctx, Run{InputPath: name, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Begin %s: %v", name, err)
		}
	}
	// Fractional seconds must order correctly against whole seconds.
	if _, err := store.Begin(ctx, Run{InputPath: "d.wav", StartedAt: base.Add(2*time.Minute + 500*time.Millisecond)}); err != nil {
		t.Fatalf("Begin d: %v", err)
	}

	runs, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	var names []string
	for _, r := range runs {
		names = append(names, r.InputName)
	}
	if strings.Join(names, ",") != "d.wav,c.wav,b.wav" {
		t.Fatalf("unexpected order %v", names)
	}
	all, err := store.List(ctx, 0)
	if err != nil || len(all) != 4 {
		t.Fatalf("List all: %v (%d)", err, len(all))
	}
}

func TestLatestByHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	if got, err := store.LatestByHash(ctx, "h1"); err != nil || got != nil {
		t.Fatalf("expected no match, got %+v %v", got, err)
	}

	older, _ := store.Begin(ctx, Run{InputPath: "a.wav", InputHash: "h1", StartedAt: base})
	_ = store.Finish(ctx, older.ID, Outcome{Status: StatusSucceeded, OutputPath: "old.md"})
	newer, _ := store.Begin(ctx, Run{InputPath: "a.wav", InputHash: "h1", StartedAt: base.Add(time.Hour)})
	_ = store.Finish(ctx, newer.ID, Outcome{Status: StatusSucceeded, OutputPath: "new.md"})
	failed, _ := store.Begin(ctx, Run{InputPath: "a.wav", InputHash: "h1", StartedAt: base.Add(2 * time.Hour)})
	_ = store.Finish(ctx, failed.ID, Outcome{Status: StatusFailed, ErrorKind: "external_tool"})

	got, err := store.LatestByHash(ctx, "h1")
	if err != nil {
		t.Fatalf("LatestByHash: %v", err)
	}
	if got == nil || got.OutputPath != "new.md" {
		t.Fatalf("expected newest successful run, got %+v", got)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	run, err := store.Begin(context.Background(), Run{InputPath: "a.wav"})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(context.Background(), run.ID); err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
}

func TestEncode(t *testing.T) {
	finished := time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC)
	run := &Run{
		ID:         "0f8c0d3e-1111-2222-3333-444455556666",
		InputPath:  "/data/meeting.mp4",
		InputName:  "meeting.mp4",
		Status:     StatusSucceeded,
		Source:     "web",
		Segments:   2,
		Report:     "# 音声文字起こし結果\n\nbody\n\n",
		StartedAt:  time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		FinishedAt: &finished,
	}

	var md bytes.Buffer
	if err := Encode(&md, run, "markdown"); err != nil {
		t.Fatalf("markdown: %v", err)
	}
	if md.String() != "# 音声文字起こし結果\n\nbody\n" {
		t.Fatalf("unexpected markdown %q", md.String())
	}

	var js bytes.Buffer
	if err := Encode(&js, run, "json"); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded["input_name"] != "meeting.mp4" || decoded["report"] != nil {
		t.Fatalf("unexpected json %v", decoded)
	}

	var ym bytes.Buffer
	if err := Encode(&ym, run, "yaml"); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var fromYAML map[string]any
	if err := yaml.Unmarshal(ym.Bytes(), &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if fromYAML["status"] != "succeeded" || fromYAML["segments"] != 2 {
		t.Fatalf("unexpected yaml %v", fromYAML)
	}

	if err := Encode(&md, &Run{ID: "x"}, "markdown"); !errors.Is(err, ErrNoReport) {
		t.Fatalf("expected ErrNoReport, got %v", err)
	}
	if err := Encode(&md, run, "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
}
