package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minutes/internal/device"
	"minutes/internal/media/waveform"
	"minutes/internal/services"
	"minutes/internal/transcribe"
)

const (
	defaultTimeout = 300 * time.Second
	inferencePath  = "/inference"
	maxErrorBody   = 512
)

// Config captures the server location and request timeout.
type Config struct {
	ServerURL string
	Timeout   time.Duration
}

// Client sends clips to a whisper.cpp HTTP server.
type Client struct {
	base       *url.URL
	rawURL     string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client. The URL is validated on Load.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		rawURL:     strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "whisper_server" }

// Load checks that the server answers. The device is chosen by the server.
func (c *Client) Load(ctx context.Context, _ device.Kind) error {
	base, err := url.Parse(c.rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return services.Wrap(services.ErrConfiguration, "models", "whisper server", fmt.Sprintf("invalid server_url %q", c.rawURL), err)
	}
	c.base = base
	return c.Ping(ctx)
}

// Ping issues GET / and treats any HTTP response as reachable.
func (c *Client) Ping(ctx context.Context) error {
	target := c.rawURL + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "models", "whisper server", target, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "models", "whisper server", "server unreachable at "+c.rawURL, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe uploads clip as multipart form data to /inference.
func (c *Client) Transcribe(ctx context.Context, clip waveform.Clip, opts transcribe.Options) (string, error) {
	if c.base == nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "whisper server", "client not loaded", nil)
	}
	body, contentType, err := buildForm(clip.Path, opts.Language)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe", "whisper server", clip.Path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rawURL+inferencePath, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "whisper server", "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "whisper server", "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "whisper server",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(data)), nil)
	}
	var parsed inferenceResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "whisper server", "decode response", err)
	}
	if parsed.Error != "" {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "whisper server", parsed.Error, nil)
	}
	return strings.TrimSpace(parsed.Text), nil
}

func buildForm(path, language string) (*bytes.Buffer, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	fields := []struct{ key, value string }{
		{"language", language},
		{"response_format", "json"},
		{"translate", "false"},
		{"temperature", "0.0"},
	}
	for _, f := range fields {
		if err := form.WriteField(f.key, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

func snippet(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return text
}

var _ transcribe.Transcriber = (*Client)(nil)
