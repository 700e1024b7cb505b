package transcript

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Turn is a contiguous span attributed to one speaker by the diarizer.
// Speaker labels are opaque; turns keep the order the diarizer emitted.
type Turn struct {
	Start   time.Duration
	End     time.Duration
	Speaker string
}

// Duration returns the turn length.
func (t Turn) Duration() time.Duration {
	return t.End - t.Start
}

// Segment is a transcribed turn ready for the report.
type Segment struct {
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end" yaml:"end"`
	Speaker string `json:"speaker" yaml:"speaker"`
	Text    string `json:"text" yaml:"text"`

	StartOffset time.Duration `json:"-" yaml:"-"`
	EndOffset   time.Duration `json:"-" yaml:"-"`
}

// NewSegment renders turn offsets as timestamps and attaches text.
func NewSegment(turn Turn, text string) Segment {
	return Segment{
		Start:       FormatDuration(turn.Start),
		End:         FormatDuration(turn.End),
		Speaker:     turn.Speaker,
		Text:        text,
		StartOffset: turn.Start,
		EndOffset:   turn.End,
	}
}

// FormatTimestamp renders seconds as zero-padded HH:MM:SS. Fractions are
// truncated, negative values clamp to zero, and hours do not wrap at 24.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	if math.IsInf(seconds, 1) || seconds > math.MaxInt64/2 {
		seconds = math.MaxInt64 / 2
	}
	return formatWhole(int64(seconds))
}

// FormatDuration applies the FormatTimestamp rule to a duration.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return formatWhole(int64(d / time.Second))
}

func formatWhole(total int64) string {
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// SecondsToDuration converts a decimal seconds value, as emitted by the
// diarizer, into a duration without float rounding.
func SecondsToDuration(seconds decimal.Decimal) time.Duration {
	return time.Duration(seconds.Shift(9).Round(0).IntPart())
}

// Speakers returns the distinct speaker labels in first-appearance order.
func Speakers(segments []Segment) []string {
	seen := make(map[string]struct{}, len(segments))
	var out []string
	for _, seg := range segments {
		if _, ok := seen[seg.Speaker]; ok {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		out = append(out, seg.Speaker)
	}
	return out
}
