package ffprobe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2, "tags": {"language": "jpn"}},
    {"index": 2, "codec_name": "opus", "codec_type": "Audio", "sample_rate": "bad", "channels": 1}
  ],
  "format": {"filename": "meeting.mp4", "nb_streams": 3, "duration": "123.5", "size": "1000", "format_name": "mov,mp4"}
}`

func TestParseHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	audio := result.AudioStreams()
	if len(audio) != 2 || result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", len(audio))
	}
	if audio[0].SampleRateHz() != 48000 || audio[0].Tags.Language != "jpn" {
		t.Fatalf("unexpected first audio stream %+v", audio[0])
	}
	if audio[1].SampleRateHz() != 0 {
		t.Fatalf("expected invalid sample rate to map to 0, got %d", audio[1].SampleRateHz())
	}
	if result.Duration() != 123500*time.Millisecond {
		t.Fatalf("unexpected duration: %v", result.Duration())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if result.Duration() != 0 {
		t.Fatalf("expected duration 0, got %v", result.Duration())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestInspectWithRunner(t *testing.T) {
	var gotBinary string
	var gotArgs []string
	run := func(_ context.Context, binary string, args ...string) ([]byte, error) {
		gotBinary = binary
		gotArgs = args
		return []byte(sampleJSON), nil
	}
	result, err := InspectWith(context.Background(), run, "", "/tmp/meeting.mp4")
	if err != nil {
		t.Fatalf("InspectWith: %v", err)
	}
	if gotBinary != "ffprobe" {
		t.Fatalf("expected default binary, got %q", gotBinary)
	}
	if gotArgs[len(gotArgs)-1] != "/tmp/meeting.mp4" || gotArgs[len(gotArgs)-2] != "--" {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("unexpected audio count %d", result.AudioStreamCount())
	}
}

func TestInspectErrors(t *testing.T) {
	if _, err := InspectWith(context.Background(), nil, "ffprobe", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
	failing := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: moov atom not found")
	}
	_, err := InspectWith(context.Background(), failing, "ffprobe", "broken.mp4")
	if err == nil || !strings.Contains(err.Error(), "moov atom") {
		t.Fatalf("expected runner error to surface, got %v", err)
	}
	bad := func(context.Context, string, ...string) ([]byte, error) { return []byte("not json"), nil }
	if _, err := InspectWith(context.Background(), bad, "ffprobe", "x.mp4"); err == nil || !strings.Contains(err.Error(), "ffprobe parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
