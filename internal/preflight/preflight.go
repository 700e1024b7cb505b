package preflight

import (
	"context"
	"strings"

	"minutes/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Backend checks follow the configured transcription backend.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Directories (always checked)
	results = append(results,
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)

	// Diarization always runs through the model host.
	results = append(results, CheckHFToken(cfg.Diarization.HFToken))

	switch cfg.Transcription.Backend {
	case config.BackendWhisperServer:
		results = append(results, CheckWhisperServer(ctx, cfg.Transcription.ServerURL))
	case config.BackendOpenAI:
		results = append(results, CheckOpenAIKey(cfg.Transcription.OpenAIAPIKey))
	case config.BackendWhisperCpp:
		results = append(results, CheckWhisperCppModel(cfg.Transcription.WhisperCppModelPath))
	}

	// Minutes drafting LLM (only when a key is configured)
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		results = append(results, CheckLLM(ctx, "Minutes LLM", cfg.LLM))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
