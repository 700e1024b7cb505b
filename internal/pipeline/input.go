package pipeline

import (
	"errors"
	"fmt"
	"os"

	"minutes/internal/media/extract"
	"minutes/internal/services"
)

var (
	// ErrUnsupportedInput marks an input whose extension is not accepted.
	ErrUnsupportedInput = errors.New("unsupported input format")
	// ErrInputNotFound marks a missing input path.
	ErrInputNotFound = errors.New("input file not found")
)

// ValidateInput checks that path exists, is a regular file and carries a
// supported extension. It runs before any model work.
func ValidateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "validate", "input", path, ErrInputNotFound)
		}
		return services.Wrap(services.ErrValidation, "validate", "input", path, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "validate", "input", fmt.Sprintf("%s is a directory", path), ErrUnsupportedInput)
	}
	if !extract.IsSupported(path) {
		return services.Wrap(services.ErrValidation, "validate", "input",
			fmt.Sprintf("%s (supported: %s)", extract.Ext(path), extract.SupportedList()), ErrUnsupportedInput)
	}
	return nil
}
