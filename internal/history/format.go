package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by Encode.
const (
	FormatMarkdown = "markdown"
	FormatYAML     = "yaml"
	FormatJSON     = "json"
)

// ErrNoReport is returned when markdown output is requested for a run that
// produced no report.
var ErrNoReport = errors.New("run has no stored report")

// Encode writes run to w. Markdown prints the stored report; yaml and json
// print the record itself.
func Encode(w io.Writer, run *Run, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "md", "":
		if run.Report == "" {
			return fmt.Errorf("%s: %w", run.ID, ErrNoReport)
		}
		_, err := io.WriteString(w, strings.TrimRight(run.Report, "\n")+"\n")
		return err
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	default:
		return fmt.Errorf("unknown format %q (want markdown, yaml or json)", format)
	}
}
