//go:build !whispercpp

package whispercpp

import (
	"context"

	"minutes/internal/device"
	"minutes/internal/media/waveform"
	"minutes/internal/services"
	"minutes/internal/transcribe"
)

// Compiled reports whether the native bindings are linked in.
const Compiled = false

// Client reports ErrNotCompiled from every call.
type Client struct {
	cfg Config
}

// New returns a client that validates configuration only.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Load(_ context.Context, _ device.Kind) error {
	if err := checkModel(c.cfg.ModelPath); err != nil {
		return err
	}
	return services.Wrap(services.ErrConfiguration, "models", "whispercpp", "", ErrNotCompiled)
}

func (c *Client) Transcribe(_ context.Context, _ waveform.Clip, _ transcribe.Options) (string, error) {
	return "", services.Wrap(services.ErrConfiguration, "transcribe", "whispercpp", "", ErrNotCompiled)
}

func (c *Client) Close() error { return nil }

var _ transcribe.Transcriber = (*Client)(nil)
