// Package transcript models acquired transcripts and parses caption formats.
//
// A Result records where the text came from (manual captions, auto captions,
// or local speech-to-text) along with ordered timed segments. Parsers handle
// WebVTT caption downloads and the SRT output of the whisper CLI.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Source identifies how a transcript was obtained, in priority order.
type Source string

const (
	SourceManualCaption Source = "manual_caption"
	SourceAutoCaption   Source = "auto_caption"
	SourceSpeechToText  Source = "speech_to_text"
)

// Segment is a single timed span of transcript text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is an ordered, de-duplicated transcript.
type Result struct {
	Segments []Segment `json:"segments"`
	Source   Source    `json:"source"`
	Language string    `json:"language,omitempty"`
}

// FullText joins all segment text into a single plain string.
func (r *Result) FullText() string {
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// FormatWithTimestamps renders the transcript with a parenthesized timestamp
// inserted whenever at least interval seconds have elapsed since the previous
// marker. The first segment always gets one.
func (r *Result) FormatWithTimestamps(intervalSeconds int) string {
	if len(r.Segments) == 0 {
		return ""
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}

	var parts []string
	lastTimestamp := -float64(intervalSeconds)
	for _, seg := range r.Segments {
		if seg.Start-lastTimestamp >= float64(intervalSeconds) {
			parts = append(parts, "\n("+formatTimestamp(seg.Start)+")")
			lastTimestamp = seg.Start
		}
		parts = append(parts, seg.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// Encode serializes a result for storage on the job row.
func (r *Result) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	return string(data), nil
}

// Decode deserializes a stored transcript. Empty input yields (nil, nil).
func Decode(raw string) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &result, nil
}
