package report

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"minutes/internal/transcript"
)

const (
	title          = "# 音声文字起こし結果"
	bodyHeading    = "## 発話内容"
	inputLabel     = "**入力ファイル**: "
	timeLabel      = "**処理日時**: "
	speakersLabel  = "**話者数**: "
	segmentsLabel  = "**総セグメント数**: "
	speakersSuffix = "名"
	segmentsSuffix = "個"

	// TimeLayout renders the generation time as YYYY年MM月DD日 HH:MM:SS.
	TimeLayout = "2006年01月02日 15:04:05"
)

// Summary carries the counts shown in the report header.
type Summary struct {
	Speakers int
	Segments int
}

// Stats counts distinct speakers and segments.
func Stats(segments []transcript.Segment) Summary {
	return Summary{Speakers: len(transcript.Speakers(segments)), Segments: len(segments)}
}

// Build renders segments as the markdown transcript report.
func Build(segments []transcript.Segment, inputName string, now time.Time) string {
	stats := Stats(segments)
	lines := []string{
		title,
		"",
		inputLabel + inputName,
		timeLabel + now.Format(TimeLayout),
		speakersLabel + strconv.Itoa(stats.Speakers) + speakersSuffix,
		segmentsLabel + strconv.Itoa(stats.Segments) + segmentsSuffix,
		"",
		bodyHeading,
		"",
	}
	for _, seg := range segments {
		lines = append(lines,
			segmentHeader(seg),
			Paragraph(seg.Text),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

func segmentHeader(seg transcript.Segment) string {
	return fmt.Sprintf("**[%s - %s] %s:**", seg.Start, seg.End, seg.Speaker)
}

// Paragraph collapses text into a single NFC-normalized line: each line is
// trimmed, blank lines are dropped, and the rest are joined with one space.
func Paragraph(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	parts := strings.Split(text, "\n")
	kept := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}

// Parsed is a report read back from markdown.
type Parsed struct {
	InputName   string
	GeneratedAt time.Time
	Summary     Summary
	Segments    []transcript.Segment
}

var (
	// ErrMalformed is returned when markdown does not follow the report layout.
	ErrMalformed = errors.New("malformed transcript report")

	headerPattern = regexp.MustCompile(`^\*\*\[(\d{2,}:\d{2}:\d{2}) - (\d{2,}:\d{2}:\d{2})\] (.*):\*\*$`)
)

// Parse reads a report produced by Build. Timestamps are interpreted in loc;
// a nil loc means time.Local.
func Parse(markdown string, loc *time.Location) (Parsed, error) {
	if loc == nil {
		loc = time.Local
	}
	markdown = strings.ReplaceAll(markdown, "\r\n", "\n")
	lines := strings.Split(markdown, "\n")
	if len(lines) < 9 || lines[0] != title {
		return Parsed{}, fmt.Errorf("%w: missing title", ErrMalformed)
	}

	var out Parsed
	var err error
	if out.InputName, err = field(lines[2], inputLabel, ""); err != nil {
		return Parsed{}, err
	}
	rawTime, err := field(lines[3], timeLabel, "")
	if err != nil {
		return Parsed{}, err
	}
	if out.GeneratedAt, err = time.ParseInLocation(TimeLayout, rawTime, loc); err != nil {
		return Parsed{}, fmt.Errorf("%w: processing time: %v", ErrMalformed, err)
	}
	if out.Summary.Speakers, err = countField(lines[4], speakersLabel, speakersSuffix); err != nil {
		return Parsed{}, err
	}
	if out.Summary.Segments, err = countField(lines[5], segmentsLabel, segmentsSuffix); err != nil {
		return Parsed{}, err
	}
	if lines[7] != bodyHeading {
		return Parsed{}, fmt.Errorf("%w: missing %q", ErrMalformed, bodyHeading)
	}

	body := lines[9:]
	for i := 0; i < len(body); i++ {
		if body[i] == "" {
			continue
		}
		match := headerPattern.FindStringSubmatch(body[i])
		if match == nil {
			return Parsed{}, fmt.Errorf("%w: unexpected line %q", ErrMalformed, body[i])
		}
		text := ""
		if i+1 < len(body) {
			text = body[i+1]
			i++
		}
		out.Segments = append(out.Segments, transcript.Segment{
			Start:   match[1],
			End:     match[2],
			Speaker: match[3],
			Text:    text,
		})
	}

	actual := Stats(out.Segments)
	if actual != out.Summary {
		return Parsed{}, fmt.Errorf("%w: header counts %d名/%d個 do not match body %d名/%d個",
			ErrMalformed, out.Summary.Speakers, out.Summary.Segments, actual.Speakers, actual.Segments)
	}
	return out, nil
}

func field(line, label, suffix string) (string, error) {
	if !strings.HasPrefix(line, label) || !strings.HasSuffix(line, suffix) {
		return "", fmt.Errorf("%w: expected %q line, got %q", ErrMalformed, strings.TrimSpace(label), line)
	}
	return strings.TrimSuffix(strings.TrimPrefix(line, label), suffix), nil
}

func countField(line, label, suffix string) (int, error) {
	raw, err := field(line, label, suffix)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid count %q", ErrMalformed, raw)
	}
	return n, nil
}
