package config

import (
	"errors"
	"fmt"
	"strings"

	"minutes/internal/language"
)

var knownDevices = map[string]struct{}{"cuda": {}, "mps": {}, "cpu": {}}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWeb(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.SampleRate <= 0 {
		return errors.New("pipeline.sample_rate must be positive")
	}
	if p.MinSegmentDuration < 0 {
		return errors.New("pipeline.min_segment_duration must be >= 0")
	}
	if strings.TrimSpace(p.Language) == "" {
		return errors.New("pipeline.language must be set")
	}
	if _, err := language.Normalize(p.Language); err != nil {
		return fmt.Errorf("pipeline.language: %w", err)
	}
	if p.Task != defaultTask {
		return fmt.Errorf("pipeline.task must be %q (got %q)", defaultTask, p.Task)
	}
	for _, kind := range p.DevicePriority {
		if _, ok := knownDevices[kind]; !ok {
			return fmt.Errorf("pipeline.device_priority: unknown device %q (expected cuda, mps, or cpu)", kind)
		}
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	switch t.Backend {
	case BackendLocal:
		return nil
	case BackendWhisperServer:
		if t.ServerURL == "" {
			return errors.New("transcription.server_url must be set when transcription.backend is whisper_server")
		}
		if !strings.HasPrefix(t.ServerURL, "http://") && !strings.HasPrefix(t.ServerURL, "https://") {
			return fmt.Errorf("transcription.server_url must be an http(s) URL (got %q)", t.ServerURL)
		}
	case BackendOpenAI:
		if t.OpenAIAPIKey == "" {
			return errors.New("transcription.openai_api_key must be set when transcription.backend is openai (or set OPENAI_API_KEY)")
		}
	case BackendWhisperCpp:
		if t.WhisperCppModelPath == "" {
			return errors.New("transcription.whispercpp_model_path must be set when transcription.backend is whispercpp")
		}
	default:
		return fmt.Errorf("transcription.backend: unsupported value %q (expected local, whisper_server, openai, or whispercpp)", t.Backend)
	}
	return nil
}

func (c *Config) validateWeb() error {
	if c.Web.SoftLimitMB >= c.Web.HardLimitMB {
		return fmt.Errorf("web.soft_limit_mb (%d) must be less than web.hard_limit_mb (%d)", c.Web.SoftLimitMB, c.Web.HardLimitMB)
	}
	return nil
}
