package openaistt

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"minutes/internal/device"
	"minutes/internal/media/waveform"
	"minutes/internal/services"
	"minutes/internal/transcribe"
)

// DefaultModel is the hosted speech recognition model.
const DefaultModel = "whisper-1"

// Config holds the API credentials and model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// MaxRetries overrides the SDK retry count when non-negative.
	MaxRetries int
}

// Client transcribes clips with the OpenAI audio transcription endpoint.
type Client struct {
	cfg    Config
	client *openai.Client
}

// New returns an unloaded client. Credentials are checked on Load.
func New(cfg Config) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return "openai" }

// Load validates the key and builds the SDK client.
func (c *Client) Load(_ context.Context, _ device.Kind) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "models", "openai", "transcription.openai_api_key or OPENAI_API_KEY required", nil)
	}
	opts := []option.RequestOption{option.WithAPIKey(c.cfg.APIKey)}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	if c.cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: c.cfg.Timeout}))
	}
	if c.cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(c.cfg.MaxRetries))
	}
	client := openai.NewClient(opts...)
	c.client = &client
	return nil
}

// Transcribe uploads the clip and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, clip waveform.Clip, opts transcribe.Options) (string, error) {
	if c.client == nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "openai", "client not loaded", nil)
	}
	file, err := os.Open(clip.Path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe", "openai", clip.Path, err)
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:           file,
		Model:          openai.AudioModel(c.cfg.Model),
		ResponseFormat: openai.AudioResponseFormatJSON,
		Temperature:    openai.Float(0),
	}
	if opts.Language != "" {
		params.Language = openai.String(opts.Language)
	}
	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return "", services.Wrap(services.ErrConfiguration, "transcribe", "openai", "api key rejected", err)
		}
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "openai", "transcription request failed", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

var _ transcribe.Transcriber = (*Client)(nil)
