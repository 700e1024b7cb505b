package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"minutes/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeDiarization()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizePython()
	c.normalizeWeb()
	c.normalizeLLM()
	c.normalizeNotifications()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.SampleRate == 0 {
		c.Pipeline.SampleRate = defaultSampleRate
	}
	c.Pipeline.Language = strings.ToLower(strings.TrimSpace(c.Pipeline.Language))
	if code, err := language.Normalize(c.Pipeline.Language); err == nil {
		c.Pipeline.Language = code
	}
	c.Pipeline.Task = strings.ToLower(strings.TrimSpace(c.Pipeline.Task))
	if c.Pipeline.Task == "" {
		c.Pipeline.Task = defaultTask
	}
	priority := make([]string, 0, len(c.Pipeline.DevicePriority))
	for _, kind := range c.Pipeline.DevicePriority {
		if normalized := strings.ToLower(strings.TrimSpace(kind)); normalized != "" {
			priority = append(priority, normalized)
		}
	}
	c.Pipeline.DevicePriority = priority
}

func (c *Config) normalizeDiarization() {
	c.Diarization.Model = strings.TrimSpace(c.Diarization.Model)
	if c.Diarization.Model == "" {
		c.Diarization.Model = defaultDiarizationModel
	}
	c.Diarization.HFToken = strings.TrimSpace(c.Diarization.HFToken)
	if c.Diarization.HFToken == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Diarization.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Diarization.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTranscription() error {
	t := &c.Transcription
	t.Backend = strings.ToLower(strings.TrimSpace(t.Backend))
	if t.Backend == "" {
		t.Backend = defaultBackend
	}
	t.Model = strings.TrimSpace(t.Model)
	if t.Model == "" {
		t.Model = defaultWhisperModel
	}
	t.ServerURL = strings.TrimRight(strings.TrimSpace(t.ServerURL), "/")
	t.OpenAIBaseURL = strings.TrimSpace(t.OpenAIBaseURL)
	t.OpenAIModel = strings.TrimSpace(t.OpenAIModel)
	if t.OpenAIModel == "" {
		t.OpenAIModel = defaultOpenAIModel
	}
	t.OpenAIAPIKey = strings.TrimSpace(t.OpenAIAPIKey)
	if t.OpenAIAPIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			t.OpenAIAPIKey = strings.TrimSpace(value)
		}
	}
	var err error
	if t.WhisperCppModelPath, err = expandPath(strings.TrimSpace(t.WhisperCppModelPath)); err != nil {
		return fmt.Errorf("transcription.whispercpp_model_path: %w", err)
	}
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = defaultTranscribeTimeout
	}
	return nil
}

func (c *Config) normalizePython() {
	c.Python.UVXCommand = strings.TrimSpace(c.Python.UVXCommand)
	if c.Python.UVXCommand == "" {
		c.Python.UVXCommand = defaultUVXCommand
	}
	c.Python.CUDAIndexURL = strings.TrimSpace(c.Python.CUDAIndexURL)
	packages := make([]string, 0, len(c.Python.ExtraPackages))
	for _, pkg := range c.Python.ExtraPackages {
		if trimmed := strings.TrimSpace(pkg); trimmed != "" {
			packages = append(packages, trimmed)
		}
	}
	c.Python.ExtraPackages = packages
}

func (c *Config) normalizeWeb() {
	c.Web.Bind = strings.TrimSpace(c.Web.Bind)
	if c.Web.Bind == "" {
		c.Web.Bind = defaultWebBind
	}
	if c.Web.SoftLimitMB <= 0 {
		c.Web.SoftLimitMB = defaultSoftLimitMB
	}
	if c.Web.HardLimitMB <= 0 {
		c.Web.HardLimitMB = defaultHardLimitMB
	}
	if c.Web.JobTTLMinutes <= 0 {
		c.Web.JobTTLMinutes = defaultJobTTLMinutes
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.StateDir, defaultHistoryFile)
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
