package transcript

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"voxbox/internal/services"
)

var (
	htmlTags      = regexp.MustCompile(`<[^>]+>`)
	bracketedCues = regexp.MustCompile(`\[[^\]]*\]`)
	parenCues     = regexp.MustCompile(`\([^)]*\)`)
	vttTimingLine = regexp.MustCompile(`^([\d:.,]+)\s+-->\s+([\d:.,]+)`)
	srtIndexLine  = regexp.MustCompile(`^\d+$`)
)

// ParseVTT parses WebVTT caption contents into an ordered, merged transcript.
// Auto-generated captions repeat and overlap text heavily; duplicate and
// subset segments are collapsed.
func ParseVTT(contents string, source Source) (*Result, error) {
	if !strings.Contains(contents, "-->") {
		return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-vtt", "no cue timings found", nil)
	}

	var segments []Segment
	var current *Segment
	scanner := bufio.NewScanner(strings.NewReader(contents))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = CleanCaptionText(current.Text)
		if current.Text != "" {
			segments = append(segments, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE") ||
			strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "Kind:") ||
			strings.HasPrefix(line, "Language:") {
			continue
		}
		if match := vttTimingLine.FindStringSubmatch(line); match != nil {
			flush()
			start, err := parseClockTime(match[1])
			if err != nil {
				return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-vtt", fmt.Sprintf("bad cue start %q", match[1]), err)
			}
			end, err := parseClockTime(match[2])
			if err != nil {
				return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-vtt", fmt.Sprintf("bad cue end %q", match[2]), err)
			}
			current = &Segment{Start: start, End: end}
			continue
		}
		if current != nil {
			if current.Text != "" {
				current.Text += " "
			}
			current.Text += line
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-vtt", "read captions", err)
	}

	merged := NormalizeSegments(MergeSegments(segments))
	if len(merged) == 0 {
		return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-vtt", "captions contained no usable text", nil)
	}
	return &Result{Segments: merged, Source: source}, nil
}

// ParseSRT parses SubRip contents, as emitted by the whisper CLI.
func ParseSRT(contents string, language string) (*Result, error) {
	var segments []Segment
	var current *Segment
	scanner := bufio.NewScanner(strings.NewReader(contents))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(htmlTags.ReplaceAllString(current.Text, ""))
		if current.Text != "" {
			segments = append(segments, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if srtIndexLine.MatchString(line) && current == nil {
			continue
		}
		if match := vttTimingLine.FindStringSubmatch(line); match != nil {
			flush()
			start, err := parseClockTime(match[1])
			if err != nil {
				return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-srt", fmt.Sprintf("bad cue start %q", match[1]), err)
			}
			end, err := parseClockTime(match[2])
			if err != nil {
				return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-srt", fmt.Sprintf("bad cue end %q", match[2]), err)
			}
			current = &Segment{Start: start, End: end}
			continue
		}
		if current != nil {
			if current.Text != "" {
				current.Text += " "
			}
			current.Text += line
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-srt", "read subtitles", err)
	}

	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrTranscription, "transcript", "parse-srt", "subtitles contained no usable text", nil)
	}
	return &Result{Segments: NormalizeSegments(segments), Source: SourceSpeechToText, Language: language}, nil
}

// CleanCaptionText strips markup tags, bracketed sound cues, and collapses
// whitespace.
func CleanCaptionText(text string) string {
	text = htmlTags.ReplaceAllString(text, "")
	text = bracketedCues.ReplaceAllString(text, "")
	text = parenCues.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeSegments orders segments by start time and resolves overlaps so
// the result is monotonically increasing and pairwise non-overlapping. A
// segment fully inside its predecessor folds its text into it; a partial
// overlap clips the later start to the earlier end.
func NormalizeSegments(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].End < ordered[j].End
	})

	normalized := make([]Segment, 0, len(ordered))
	normalized = append(normalized, ordered[0])
	for _, segment := range ordered[1:] {
		last := &normalized[len(normalized)-1]
		if segment.End <= last.End {
			if segment.Text != "" && !strings.Contains(last.Text, segment.Text) {
				last.Text += " " + segment.Text
			}
			continue
		}
		if segment.Start < last.End {
			segment.Start = last.End
		}
		normalized = append(normalized, segment)
	}
	return normalized
}

// MergeSegments removes duplicate and subset segments while preserving order.
// When a later segment extends the previous one it replaces it.
func MergeSegments(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}

	var merged []Segment
	seen := make(map[string]struct{}, len(segments))

	for _, segment := range segments {
		key := strings.ToLower(strings.TrimSpace(segment.Text))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if len(merged) > 0 {
			lastKey := strings.ToLower(strings.TrimSpace(merged[len(merged)-1].Text))
			if strings.Contains(lastKey, key) {
				continue
			}
			if strings.Contains(key, lastKey) {
				delete(seen, lastKey)
				merged[len(merged)-1] = segment
				seen[key] = struct{}{}
				continue
			}
		}
		merged = append(merged, segment)
		seen[key] = struct{}{}
	}
	return merged
}

// parseClockTime converts "HH:MM:SS.mmm", "MM:SS.mmm", or bare seconds to
// float seconds. SRT comma separators are accepted.
func parseClockTime(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	parts := strings.Split(value, ":")
	switch len(parts) {
	case 3:
		hours, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, err
		}
		minutes, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, err
		}
		seconds, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, err
		}
		return float64(hours)*3600 + float64(minutes)*60 + seconds, nil
	case 2:
		minutes, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, err
		}
		seconds, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, err
		}
		return float64(minutes)*60 + seconds, nil
	default:
		return strconv.ParseFloat(value, 64)
	}
}
