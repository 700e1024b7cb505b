package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"minutes/internal/config"
	"minutes/internal/device"
	"minutes/internal/media/extract"
	"minutes/internal/metrics"
	"minutes/internal/services"
	"minutes/internal/services/modelhost"
	"minutes/internal/services/openaistt"
	"minutes/internal/services/whispercpp"
	"minutes/internal/services/whisperserver"
	"minutes/internal/transcribe"
)

const openAIMaxRetries = 2

// ConfigFrom derives the pipeline settings from the loaded configuration.
func ConfigFrom(cfg *config.Config) (Config, error) {
	priority, err := device.ParsePriority(cfg.Pipeline.DevicePriority)
	if err != nil {
		return Config{}, services.Wrap(services.ErrConfiguration, "config", "device_priority", "", err)
	}
	return Config{
		SampleRate:         cfg.Pipeline.SampleRate,
		MinSegmentDuration: cfg.MinSegmentDuration(),
		Language:           cfg.Pipeline.Language,
		Task:               cfg.Pipeline.Task,
		DevicePriority:     priority,
		WorkDir:            cfg.Paths.WorkDir,
		FFmpegBinary:       cfg.FFmpegBinary(),
	}, nil
}

// NewFromConfig wires the extractor, the model host diarizer and the
// configured transcription backend. Diarization always runs in the model
// host; recognition shares that host only for the local backend.
func NewFromConfig(cfg *config.Config, met *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	pcfg, err := ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	host := modelhost.New(modelhost.Config{
		UVXBinary:     cfg.UVXBinary(),
		CUDAIndexURL:  cfg.Python.CUDAIndexURL,
		ExtraPackages: cfg.Python.ExtraPackages,
		HFToken:       cfg.Diarization.HFToken,
		ScriptDir:     filepath.Join(cfg.Paths.StateDir, "modelhost"),
	}, logger)

	transcriber, err := NewTranscriber(cfg, host)
	if err != nil {
		return nil, err
	}
	return New(pcfg, Deps{
		Extractor:   extract.New(cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Pipeline.SampleRate, logger).WithLanguage(cfg.Pipeline.Language),
		Diarizer:    modelhost.NewDiarizer(host, cfg.Diarization.Model),
		Transcriber: transcriber,
		Prober:      device.NewSystemProber(),
		Backend:     cfg.Transcription.Backend,
		Metrics:     met,
		Logger:      logger,
	})
}

// NewTranscriber returns the recognition backend named by
// transcription.backend.
func NewTranscriber(cfg *config.Config, host *modelhost.Host) (transcribe.Transcriber, error) {
	switch cfg.Transcription.Backend {
	case config.BackendLocal, "":
		return modelhost.NewTranscriber(host, cfg.Transcription.Model), nil
	case config.BackendWhisperServer:
		return whisperserver.New(whisperserver.Config{
			ServerURL: cfg.Transcription.ServerURL,
			Timeout:   cfg.TranscriptionTimeout(),
		}), nil
	case config.BackendOpenAI:
		return openaistt.New(openaistt.Config{
			APIKey:     cfg.Transcription.OpenAIAPIKey,
			BaseURL:    cfg.Transcription.OpenAIBaseURL,
			Model:      cfg.Transcription.OpenAIModel,
			Timeout:    cfg.TranscriptionTimeout(),
			MaxRetries: openAIMaxRetries,
		}), nil
	case config.BackendWhisperCpp:
		return whispercpp.New(whispercpp.Config{ModelPath: cfg.Transcription.WhisperCppModelPath}), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "config", "transcription.backend",
			fmt.Sprintf("unknown backend %q", cfg.Transcription.Backend), nil)
	}
}
