//go:build whispercpp

package whispercpp

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"minutes/internal/device"
	"minutes/internal/media/waveform"
	"minutes/internal/services"
	"minutes/internal/transcribe"
)

// Compiled reports whether the native bindings are linked in.
const Compiled = true

// Client runs whisper.cpp in process through the CGO bindings.
type Client struct {
	cfg Config

	mu    sync.Mutex
	model whisper.Model
}

// New returns an unloaded client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Load opens the ggml model. The device is chosen by the library build.
func (c *Client) Load(_ context.Context, _ device.Kind) error {
	if err := checkModel(c.cfg.ModelPath); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil {
		return nil
	}
	model, err := whisper.New(c.cfg.ModelPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "models", "whispercpp", "load "+c.cfg.ModelPath, err)
	}
	c.model = model
	return nil
}

// Transcribe decodes the clip samples and joins every recognized segment.
func (c *Client) Transcribe(ctx context.Context, clip waveform.Clip, opts transcribe.Options) (string, error) {
	if err := checkRate(clip.SampleRate); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "whispercpp", "model not loaded", nil)
	}
	samples, err := clip.Samples()
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe", "whispercpp", clip.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := c.model.NewContext()
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "whispercpp", "new context", err)
	}
	if opts.Language != "" {
		if err := wctx.SetLanguage(opts.Language); err != nil {
			return "", services.Wrap(services.ErrConfiguration, "transcribe", "whispercpp", "language "+opts.Language, err)
		}
	}
	wctx.SetTranslate(false)
	if c.cfg.Threads > 0 {
		wctx.SetThreads(uint(c.cfg.Threads))
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "whispercpp", "process", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", services.Wrap(services.ErrExternalTool, "transcribe", "whispercpp", "next segment", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, ""), nil
}

// Close releases the model.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model == nil {
		return nil
	}
	err := c.model.Close()
	c.model = nil
	return err
}

var _ transcribe.Transcriber = (*Client)(nil)
