package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working, state, and log directories.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Pipeline contains segment pipeline settings.
type Pipeline struct {
	SampleRate int `toml:"sample_rate"`
	// MinSegmentDuration is expressed in seconds.
	MinSegmentDuration float64  `toml:"min_segment_duration"`
	Language           string   `toml:"language"`
	Task               string   `toml:"task"`
	DevicePriority     []string `toml:"device_priority"`
	ExclusiveLock      bool     `toml:"exclusive_lock"`
}

// Diarization contains speaker diarization settings.
type Diarization struct {
	Model   string `toml:"model"`
	HFToken string `toml:"hf_token"`
}

// Transcription selects and configures the speech recognition backend.
type Transcription struct {
	Backend             string `toml:"backend"`
	Model               string `toml:"model"`
	ServerURL           string `toml:"server_url"`
	OpenAIAPIKey        string `toml:"openai_api_key"`
	OpenAIBaseURL       string `toml:"openai_base_url"`
	OpenAIModel         string `toml:"openai_model"`
	WhisperCppModelPath string `toml:"whispercpp_model_path"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// Python contains the uvx invocation used for the model host.
type Python struct {
	UVXCommand    string   `toml:"uvx_command"`
	CUDAIndexURL  string   `toml:"cuda_index_url"`
	ExtraPackages []string `toml:"extra_packages"`
}

// Web contains settings for the interactive upload UI.
type Web struct {
	Bind          string `toml:"bind"`
	SoftLimitMB   int    `toml:"soft_limit_mb"`
	HardLimitMB   int    `toml:"hard_limit_mb"`
	JobTTLMinutes int    `toml:"job_ttl_minutes"`
}

// LLM contains connection settings for minutes drafting.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// History contains configuration for the run history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for minutes.
//
// Configuration sections by subsystem:
//   - Paths: temp, state, and log directories
//   - Pipeline: sample rate, segment filtering, language, device order
//   - Diarization: pyannote model and Hugging Face token
//   - Transcription: speech recognition backend selection
//   - Python: uvx settings for the model host
//   - Web: upload UI bind address and size limits
//   - LLM: minutes drafting through a chat completion API
//   - Notifications: ntfy push notification settings
//   - History: run history database
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Diarization   Diarization   `toml:"diarization"`
	Transcription Transcription `toml:"transcription"`
	Python        Python        `toml:"python"`
	Web           Web           `toml:"web"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("minutes.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work, state, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio extraction.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for stream inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// UVXBinary returns the uvx executable used to launch the model host.
func (c *Config) UVXBinary() string {
	if value := strings.TrimSpace(c.Python.UVXCommand); value != "" {
		return value
	}
	return defaultUVXCommand
}

// MinSegmentDuration returns the configured minimum turn length.
func (c *Config) MinSegmentDuration() time.Duration {
	return time.Duration(c.Pipeline.MinSegmentDuration * float64(time.Second))
}

// TranscriptionTimeout returns the per-request timeout for remote backends.
func (c *Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSeconds) * time.Second
}

// LockPath returns the path of the cross-process run lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "minutes.lock")
}

// SoftLimitBytes returns the upload size above which a warning is attached.
func (c *Config) SoftLimitBytes() int64 {
	return int64(c.Web.SoftLimitMB) << 20
}

// HardLimitBytes returns the upload size above which uploads are refused.
func (c *Config) HardLimitBytes() int64 {
	return int64(c.Web.HardLimitMB) << 20
}

// JobTTL returns how long finished web jobs are retained.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.Web.JobTTLMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "minutes", "work")
	}
	return "~/.cache/minutes/work"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}
