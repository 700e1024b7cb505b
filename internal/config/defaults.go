package config

const (
	defaultConfigPath        = "~/.config/minutes/config.toml"
	defaultStateDir          = "~/.local/share/minutes"
	defaultLogDir            = "~/.local/share/minutes/logs"
	defaultSampleRate        = 16000
	defaultMinSegmentSeconds = 0.1
	defaultLanguage          = "ja"
	defaultTask              = "transcribe"
	defaultDiarizationModel  = "pyannote/speaker-diarization-3.1"
	defaultBackend           = BackendLocal
	defaultWhisperModel      = "openai/whisper-large-v3"
	defaultOpenAIModel       = "whisper-1"
	defaultTranscribeTimeout = 300
	defaultUVXCommand        = "uvx"
	defaultCUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	defaultWebBind           = "127.0.0.1:7860"
	defaultSoftLimitMB       = 500
	defaultHardLimitMB       = 1000
	defaultJobTTLMinutes     = 60
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://localhost/minutes"
	defaultLLMTitle          = "Minutes Draft"
	defaultLLMTimeoutSeconds = 120
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultHistoryFile       = "history.db"
)

// Transcription backends.
const (
	BackendLocal         = "local"
	BackendWhisperServer = "whisper_server"
	BackendOpenAI        = "openai"
	BackendWhisperCpp    = "whispercpp"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir(),
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Pipeline: Pipeline{
			SampleRate:         defaultSampleRate,
			MinSegmentDuration: defaultMinSegmentSeconds,
			Language:           defaultLanguage,
			Task:               defaultTask,
			DevicePriority:     []string{"cuda", "mps", "cpu"},
			ExclusiveLock:      true,
		},
		Diarization: Diarization{
			Model: defaultDiarizationModel,
		},
		Transcription: Transcription{
			Backend:        defaultBackend,
			Model:          defaultWhisperModel,
			OpenAIModel:    defaultOpenAIModel,
			TimeoutSeconds: defaultTranscribeTimeout,
		},
		Python: Python{
			UVXCommand:   defaultUVXCommand,
			CUDAIndexURL: defaultCUDAIndexURL,
		},
		Web: Web{
			Bind:          defaultWebBind,
			SoftLimitMB:   defaultSoftLimitMB,
			HardLimitMB:   defaultHardLimitMB,
			JobTTLMinutes: defaultJobTTLMinutes,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
