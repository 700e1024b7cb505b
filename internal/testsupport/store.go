package testsupport

import (
	"context"
	"testing"

	"minutes/internal/config"
	"minutes/internal/history"
)

// MustOpenHistory opens the run history for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewRun begins a run record for input using the provided store.
func NewRun(t testing.TB, store *history.Store, input string) *history.Run {
	t.Helper()

	run, err := store.Begin(context.Background(), history.Run{InputPath: input})
	if err != nil {
		t.Fatalf("store.Begin: %v", err)
	}
	return run
}
