package whispercpp

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"minutes/internal/services"
)

// RequiredSampleRate is the only rate whisper.cpp accepts.
const RequiredSampleRate = 16000

// ErrNotCompiled is returned when the binary was built without the
// whispercpp build tag.
var ErrNotCompiled = errors.New("whisper.cpp support not compiled in; rebuild with -tags whispercpp")

// Config points at a ggml model file.
type Config struct {
	ModelPath string
	// Threads caps the decoder threads; zero keeps the library default.
	Threads int
}

func (c *Client) Name() string { return "whispercpp" }

func checkModel(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return services.Wrap(services.ErrConfiguration, "models", "whispercpp", "transcription.whispercpp_model_path required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "models", "whispercpp", "model file "+path, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "models", "whispercpp", fmt.Sprintf("model path %s is a directory", path), nil)
	}
	return nil
}

func checkRate(rate int) error {
	if rate != RequiredSampleRate {
		return services.Wrap(services.ErrValidation, "transcribe", "whispercpp",
			fmt.Sprintf("clip sample rate %d, need %d", rate, RequiredSampleRate), nil)
	}
	return nil
}
