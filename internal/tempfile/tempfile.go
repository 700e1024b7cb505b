package tempfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// File is a tracked temporary file that is deleted at most once.
type File struct {
	path string
	once sync.Once
	err  error
}

// Path returns the file location.
func (f *File) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// Remove deletes the file. Later calls return the first result. A file that
// is already gone counts as removed.
func (f *File) Remove() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.err = fmt.Errorf("remove temp file %s: %w", f.path, err)
		}
	})
	return f.err
}

// Set owns a per-run temp directory and every file allocated in it.
type Set struct {
	dir string

	mu      sync.Mutex
	files   []*File
	cleaned bool
	err     error
}

// NewSet creates a fresh temp directory under root. An empty root uses the
// system temp directory.
func NewSet(root, prefix string) (*Set, error) {
	root = strings.TrimSpace(root)
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create temp root %s: %w", root, err)
		}
	}
	if prefix == "" {
		prefix = "minutes-"
	}
	dir, err := os.MkdirTemp(root, prefix)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Set{dir: dir}, nil
}

// Dir returns the set's directory.
func (s *Set) Dir() string {
	return s.dir
}

// Create allocates an empty tracked file whose name follows pattern (see
// os.CreateTemp).
func (s *Set) Create(pattern string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaned {
		return nil, errors.New("temp set already cleaned up")
	}
	handle, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := handle.Name()
	if err := handle.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	file := &File{path: path}
	s.files = append(s.files, file)
	return file, nil
}

// Track adopts a file created elsewhere so that Cleanup removes it.
func (s *Set) Track(path string) *File {
	file := &File{path: path}
	s.mu.Lock()
	s.files = append(s.files, file)
	s.mu.Unlock()
	return file
}

// Len reports how many files the set tracks.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Cleanup removes every tracked file and then the directory. It is safe to
// call more than once; later calls return the first result.
func (s *Set) Cleanup() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaned {
		return s.err
	}
	s.cleaned = true

	var errs []error
	for _, file := range s.files {
		if err := file.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errs = append(errs, fmt.Errorf("remove temp dir %s: %w", s.dir, err))
	}
	s.err = errors.Join(errs...)
	return s.err
}
