package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"minutes/internal/transcript"
)

var fixedTime = time.Date(2024, time.March, 5, 9, 7, 3, 0, time.UTC)

func sampleSegments() []transcript.Segment {
	return []transcript.Segment{
		{Start: "00:00:00", End: "00:00:02", Speaker: "SPEAKER_00", Text: "こんにちは"},
		{Start: "00:00:02", End: "00:00:05", Speaker: "SPEAKER_01", Text: "よろしくお願いします"},
		{Start: "00:00:05", End: "00:01:05", Speaker: "SPEAKER_00", Text: "本日の議題です"},
	}
}

func TestBuildExactLayout(t *testing.T) {
	got := Build(sampleSegments()[:2], "meeting.mp4", fixedTime)
	want := strings.Join([]string{
		"# 音声文字起こし結果",
		"",
		"**入力ファイル**: meeting.mp4",
		"**処理日時**: 2024年03月05日 09:07:03",
		"**話者数**: 2名",
		"**総セグメント数**: 2個",
		"",
		"## 発話内容",
		"",
		"**[00:00:00 - 00:00:02] SPEAKER_00:**",
		"こんにちは",
		"",
		"**[00:00:02 - 00:00:05] SPEAKER_01:**",
		"よろしくお願いします",
		"",
	}, "\n")
	if got != want {
		t.Fatalf("unexpected report:\n%s\n--- want ---\n%s", got, want)
	}
}

func TestBuildCounts(t *testing.T) {
	out := Build(sampleSegments(), "a.wav", fixedTime)
	if !strings.Contains(out, "**話者数**: 2名") || !strings.Contains(out, "**総セグメント数**: 3個") {
		t.Fatalf("unexpected counts in:\n%s", out)
	}
	if strings.Count(out, "**[") != 3 {
		t.Fatalf("expected 3 segment blocks")
	}
}

func TestBuildEmpty(t *testing.T) {
	out := Build(nil, "a.wav", fixedTime)
	if !strings.Contains(out, "**話者数**: 0名") || !strings.Contains(out, "**総セグメント数**: 0個") {
		t.Fatalf("unexpected empty report:\n%s", out)
	}
	if !strings.HasSuffix(out, "## 発話内容\n") {
		t.Fatalf("unexpected tail %q", out)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	a := Build(sampleSegments(), "x.mp3", fixedTime)
	b := Build(sampleSegments(), "x.mp3", fixedTime)
	if a != b {
		t.Fatal("Build must be pure")
	}
}

func TestParagraphCollapsesNewlines(t *testing.T) {
	tests := map[string]string{
		"line one\nline two":     "line one line two",
		"  a \r\n\r\n b\r c  ":   "a b c",
		"\n\n":                   "",
		"# heading\n**bold:**":   "# heading **bold:**",
		"\u304b\u3099":           "\u304c",
		"first\n   \n\tsecond\n": "first second",
		"single":                 "single",
	}
	for in, want := range tests {
		if got := Paragraph(in); got != want {
			t.Fatalf("Paragraph(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMultilineTextStaysOneParagraph(t *testing.T) {
	segs := []transcript.Segment{{Start: "00:00:00", End: "00:00:03", Speaker: "A", Text: "一行目\n## 二行目\n"}}
	out := Build(segs, "a.wav", fixedTime)
	if !strings.Contains(out, "**[00:00:00 - 00:00:03] A:**\n一行目 ## 二行目\n") {
		t.Fatalf("text not collapsed:\n%s", out)
	}
}

func TestParseRoundTrip(t *testing.T) {
	segs := sampleSegments()
	out := Build(segs, "会議 録音.mp4", fixedTime)
	parsed, err := Parse(out, time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.InputName != "会議 録音.mp4" || !parsed.GeneratedAt.Equal(fixedTime) {
		t.Fatalf("unexpected header %+v", parsed)
	}
	if parsed.Summary != (Summary{Speakers: 2, Segments: 3}) {
		t.Fatalf("unexpected summary %+v", parsed.Summary)
	}
	if len(parsed.Segments) != len(segs) {
		t.Fatalf("expected %d segments, got %d", len(segs), len(parsed.Segments))
	}
	for i := range segs {
		if parsed.Segments[i] != segs[i] {
			t.Fatalf("segment %d = %+v, want %+v", i, parsed.Segments[i], segs[i])
		}
	}
	if Build(parsed.Segments, parsed.InputName, parsed.GeneratedAt) != out {
		t.Fatal("re-rendered report differs")
	}
}

func TestParseRejectsMismatchedCounts(t *testing.T) {
	out := Build(sampleSegments(), "a.wav", fixedTime)
	tampered := strings.Replace(out, "**総セグメント数**: 3個", "**総セグメント数**: 4個", 1)
	if _, err := Parse(tampered, time.UTC); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := Parse("not a report", time.UTC); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
