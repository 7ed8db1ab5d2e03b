package transcript_test

import (
	"errors"
	"strings"
	"testing"

	"voxbox/internal/services"
	"voxbox/internal/transcript"
)

const sampleVTT = `WEBVTT
Kind: captions
Language: en

00:00:01.000 --> 00:00:04.000
<c>Hello</c> and welcome [Music]

00:00:04.000 --> 00:00:07.500
Hello and welcome to the show

00:00:07.500 --> 00:00:11.000
Hello and welcome to the show

00:01:10.000 --> 00:01:14.000
today we talk about Go
`

func TestParseVTTMergesOverlappingCaptions(t *testing.T) {
	result, err := transcript.ParseVTT(sampleVTT, transcript.SourceAutoCaption)
	if err != nil {
		t.Fatalf("ParseVTT failed: %v", err)
	}
	if result.Source != transcript.SourceAutoCaption {
		t.Fatalf("unexpected source: %s", result.Source)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 merged segments, got %d: %#v", len(result.Segments), result.Segments)
	}
	// The extended repetition replaces the shorter prefix cue.
	if result.Segments[0].Text != "Hello and welcome to the show" {
		t.Fatalf("unexpected first segment: %q", result.Segments[0].Text)
	}
	if result.Segments[1].Text != "today we talk about Go" {
		t.Fatalf("unexpected second segment: %q", result.Segments[1].Text)
	}
	for i := 1; i < len(result.Segments); i++ {
		if result.Segments[i].Start < result.Segments[i-1].Start {
			t.Fatal("segments out of order")
		}
	}
}

func TestParseVTTOrdersOutOfOrderCues(t *testing.T) {
	const vtt = `WEBVTT

00:00:10.000 --> 00:00:20.000
second cue

00:00:00.000 --> 00:00:15.000
first cue
`
	result, err := transcript.ParseVTT(vtt, transcript.SourceManualCaption)
	if err != nil {
		t.Fatalf("ParseVTT: %v", err)
	}
	assertSegmentsMonotonic(t, result.Segments)
	if result.Segments[0].Text != "first cue" {
		t.Fatalf("expected earliest cue first, got %+v", result.Segments)
	}
}

func TestNormalizeSegmentsResolvesOverlaps(t *testing.T) {
	segments := transcript.NormalizeSegments([]transcript.Segment{
		{Start: 5, End: 9, Text: "third"},
		{Start: 0, End: 6, Text: "first"},
		{Start: 1, End: 3, Text: "inside"},
	})
	assertSegmentsMonotonic(t, segments)
	if len(segments) != 2 {
		t.Fatalf("expected contained segment folded away, got %+v", segments)
	}
	if !strings.Contains(segments[0].Text, "inside") {
		t.Fatalf("contained segment text lost: %+v", segments[0])
	}
	if segments[1].Start != 6 {
		t.Fatalf("overlapping start not clipped: %+v", segments[1])
	}
}

func assertSegmentsMonotonic(t *testing.T, segments []transcript.Segment) {
	t.Helper()
	if len(segments) == 0 {
		t.Fatal("no segments")
	}
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if cur.Start < prev.End {
			t.Fatalf("segments overlap: %+v then %+v", prev, cur)
		}
		if cur.Start < prev.Start {
			t.Fatalf("segments not ordered by start: %+v then %+v", prev, cur)
		}
	}
}

func TestParseVTTRejectsGarbage(t *testing.T) {
	if _, err := transcript.ParseVTT("this is not a caption file", transcript.SourceManualCaption); err == nil {
		t.Fatal("expected error for non-VTT input")
	} else if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

const sampleSRT = `1
00:00:00,000 --> 00:00:04,200
Welcome back everyone.

2
00:00:04,200 --> 00:00:09,000
Today we are building a pipeline.
`

func TestParseSRT(t *testing.T) {
	result, err := transcript.ParseSRT(sampleSRT, "en")
	if err != nil {
		t.Fatalf("ParseSRT failed: %v", err)
	}
	if result.Source != transcript.SourceSpeechToText {
		t.Fatalf("unexpected source: %s", result.Source)
	}
	if result.Language != "en" {
		t.Fatalf("unexpected language: %q", result.Language)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(result.Segments))
	}
	if result.Segments[1].Start != 4.2 {
		t.Fatalf("unexpected start time: %v", result.Segments[1].Start)
	}
	if result.FullText() != "Welcome back everyone. Today we are building a pipeline." {
		t.Fatalf("unexpected full text: %q", result.FullText())
	}
}

func TestCleanCaptionText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<c.color>styled</c> text", "styled text"},
		{"[Music] actual words (applause)", "actual words"},
		{"  spread   out\ttext ", "spread out text"},
		{"[Music]", ""},
	}
	for _, tc := range cases {
		if got := transcript.CleanCaptionText(tc.in); got != tc.want {
			t.Errorf("CleanCaptionText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatWithTimestamps(t *testing.T) {
	result := &transcript.Result{
		Source: transcript.SourceManualCaption,
		Segments: []transcript.Segment{
			{Start: 0, End: 5, Text: "first"},
			{Start: 30, End: 35, Text: "second"},
			{Start: 65, End: 70, Text: "third"},
			{Start: 3700, End: 3705, Text: "fourth"},
		},
	}

	formatted := result.FormatWithTimestamps(60)
	if !strings.HasPrefix(formatted, "(00:00)") {
		t.Fatalf("expected leading timestamp, got %q", formatted)
	}
	if !strings.Contains(formatted, "(01:05)") {
		t.Fatalf("expected timestamp after interval, got %q", formatted)
	}
	if strings.Contains(formatted, "(00:30)") {
		t.Fatalf("timestamp should not appear within interval: %q", formatted)
	}
	if !strings.Contains(formatted, "(01:01:40)") {
		t.Fatalf("expected hour formatting, got %q", formatted)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	result := &transcript.Result{
		Source:   transcript.SourceSpeechToText,
		Language: "en",
		Segments: []transcript.Segment{{Start: 1.5, End: 3, Text: "hi"}},
	}
	raw, err := result.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := transcript.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Source != result.Source || len(decoded.Segments) != 1 || decoded.Segments[0].Text != "hi" {
		t.Fatalf("round trip mismatch: %#v", decoded)
	}

	empty, err := transcript.Decode("")
	if err != nil || empty != nil {
		t.Fatalf("expected nil result for empty input, got %#v err %v", empty, err)
	}
}
