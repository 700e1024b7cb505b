package tempfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetCreateAndCleanup(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")
	set, err := NewSet(root, "run-")
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(set.Dir()), "run-") || filepath.Dir(set.Dir()) != root {
		t.Fatalf("unexpected dir %q", set.Dir())
	}

	audio, err := set.Create("audio-*.wav")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasSuffix(audio.Path(), ".wav") {
		t.Fatalf("unexpected path %q", audio.Path())
	}
	if _, err := os.Stat(audio.Path()); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "upload.mp4")
	if err := os.WriteFile(outside, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	set.Track(outside)
	if set.Len() != 2 {
		t.Fatalf("Len = %d, want 2", set.Len())
	}

	if err := set.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	for _, path := range []string{audio.Path(), outside, set.Dir()} {
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("expected %s removed, stat err %v", path, err)
		}
	}
	if err := set.Cleanup(); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
	if _, err := set.Create("late-*"); err == nil {
		t.Fatal("expected Create after Cleanup to fail")
	}
}

func TestFileRemoveOnce(t *testing.T) {
	set, err := NewSet(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	defer set.Cleanup()

	file, err := set.Create("clip-*.wav")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := file.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	// A new file at the same path must not be deleted by a second Remove.
	if err := os.WriteFile(file.Path(), []byte("x"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := file.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := os.Stat(file.Path()); err != nil {
		t.Fatalf("expected second Remove to be a no-op: %v", err)
	}
}

func TestRemoveMissingFileSucceeds(t *testing.T) {
	set, err := NewSet(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	file := set.Track(filepath.Join(set.Dir(), "never-created.wav"))
	if err := file.Remove(); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if err := set.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestNilHelpers(t *testing.T) {
	var file *File
	if file.Path() != "" || file.Remove() != nil {
		t.Fatal("nil file helpers should be no-ops")
	}
	var set *Set
	if err := set.Cleanup(); err != nil {
		t.Fatalf("nil Cleanup: %v", err)
	}
}
