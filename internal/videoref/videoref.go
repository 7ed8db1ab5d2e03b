// Package videoref parses and validates submitted video references.
//
// A reference is the first meaningful line of a job input file: a YouTube URL
// in any of its common shapes, or a bare 11-character video ID. The extracted
// video ID is the content identity used for duplicate suppression and
// deterministic output paths.
package videoref

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"voxbox/internal/services"
)

const idPattern = `([0-9A-Za-z_-]{11})`

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com|youtube-nocookie\.com)/watch\?(?:[^#\s]*&)?v=` + idPattern),
	regexp.MustCompile(`youtu\.be/` + idPattern),
	regexp.MustCompile(`youtube\.com/embed/` + idPattern),
	regexp.MustCompile(`youtube\.com/shorts/` + idPattern),
	regexp.MustCompile(`youtube\.com/live/` + idPattern),
	regexp.MustCompile(`youtube\.com/v/` + idPattern),
}

var bareID = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// ExtractVideoID pulls the 11-character video ID out of a reference, accepting
// watch, short-link, embed, shorts, live, and mobile URL forms plus bare IDs.
func ExtractVideoID(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", services.Wrap(services.ErrInvalidInput, "videoref", "extract", "empty video reference", nil)
	}
	if bareID.MatchString(trimmed) {
		return trimmed, nil
	}
	for _, pattern := range urlPatterns {
		if match := pattern.FindStringSubmatch(trimmed); match != nil {
			return match[1], nil
		}
	}
	return "", services.Wrap(services.ErrInvalidInput, "videoref", "extract", fmt.Sprintf("unrecognized video reference %q", trimmed), nil)
}

// Normalize returns the canonical watch URL for a video ID.
func Normalize(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ParseJobFile extracts the reference from job file contents: the first
// non-empty line that is not a comment.
func ParseJobFile(contents string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(contents))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", services.Wrap(services.ErrInvalidInput, "videoref", "parse-file", "job file contains no video reference", nil)
}
