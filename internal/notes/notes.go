// Package notes assembles markdown knowledge notes.
//
// Assembly is pure: callers supply metadata, summary, and transcript text and
// receive the rendered document plus folder and file names. All filesystem
// publication is the archiver's job.
package notes

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// AudioFilename is the companion audio file name inside every note folder.
const AudioFilename = "audio.mp3"

// Input carries everything needed to render a note.
type Input struct {
	Title           string
	Channel         string
	URL             string
	Source          string // transcript source kind
	UploadDate      string // YYYYMMDD from video metadata, may be empty
	DurationSeconds int
	Tags            []string
	Summary         string
	Takeaways       []string
	Topics          []string
	Transcript      string // formatted with timestamps
	ProcessedAt     time.Time
}

type frontmatter struct {
	Title         string   `yaml:"title"`
	Channel       string   `yaml:"channel"`
	URL           string   `yaml:"url"`
	Source        string   `yaml:"source"`
	UploadDate    string   `yaml:"upload_date"`
	Duration      string   `yaml:"duration"`
	Tags          []string `yaml:"tags"`
	ProcessedDate string   `yaml:"processed_date"`
	Audio         string   `yaml:"audio"`
}

// Render produces the complete markdown document.
func Render(input Input) (string, error) {
	processed := input.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}

	front := frontmatter{
		Title:         fallback(input.Title, "Untitled"),
		Channel:       fallback(input.Channel, "Unknown"),
		URL:           input.URL,
		Source:        input.Source,
		UploadDate:    formatUploadDate(input.UploadDate),
		Duration:      FormatDuration(input.DurationSeconds),
		Tags:          input.Tags,
		ProcessedDate: processed.Format("2006-01-02"),
		Audio:         AudioFilename,
	}
	encoded, err := yaml.Marshal(&front)
	if err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(encoded)
	b.WriteString("---\n\n")
	b.WriteString("# " + front.Title + "\n")

	if strings.TrimSpace(input.Summary) != "" {
		b.WriteString("\n## AI Summary\n\n")
		b.WriteString(strings.TrimSpace(input.Summary))
		b.WriteString("\n\n### Key Takeaways\n\n")
		if len(input.Takeaways) == 0 {
			b.WriteString("* No key takeaways extracted.\n")
		} else {
			for _, takeaway := range input.Takeaways {
				b.WriteString("* " + takeaway + "\n")
			}
		}
		if len(input.Topics) > 0 {
			b.WriteString("\n### Topics Covered\n\n")
			b.WriteString(strings.Join(input.Topics, ", "))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n---\n\n## Audio\n\n")
	b.WriteString("![[" + AudioFilename + "]]\n")
	b.WriteString("\n---\n\n## Full Transcript\n\n")
	b.WriteString(strings.TrimSpace(input.Transcript))
	b.WriteString("\n")

	return b.String(), nil
}

// FolderName builds the note folder name: YYYY-MM-DD_Sanitized_Title.
func FolderName(processed time.Time, title string) string {
	if processed.IsZero() {
		processed = time.Now()
	}
	return processed.Format("2006-01-02") + "_" + SanitizeFilename(title)
}

// Filename builds the markdown file name within the note folder.
func Filename(title string) string {
	return SanitizeFilename(title) + ".md"
}

// UniquePath returns path if unused, otherwise the first available
// _N-suffixed variant.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d", path, counter)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFilename makes a title safe for use as a file or folder name:
// folds diacritics, strips reserved characters, collapses whitespace to
// underscores, and truncates to 50 characters.
func SanitizeFilename(name string) string {
	sanitized := foldDiacritics(name)
	sanitized = unsafeFilenameChars.ReplaceAllString(sanitized, "")
	sanitized = strings.Join(strings.Fields(sanitized), "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if len(sanitized) > 50 {
		sanitized = strings.TrimRight(truncateRunesafe(sanitized, 50), "_")
	}
	if sanitized == "" {
		return "Untitled"
	}
	return sanitized
}

// foldDiacritics decomposes accented characters and drops the combining
// marks so titles like "Café" name folders as "Cafe".
func foldDiacritics(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(chain, s)
	if err != nil {
		return s
	}
	return folded
}

func truncateRunesafe(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// FormatDuration renders seconds as M:SS or H:MM:SS, or "Unknown" when the
// duration was not reported.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "Unknown"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func formatUploadDate(raw string) string {
	if len(raw) == 8 {
		return raw[:4] + "-" + raw[4:6] + "-" + raw[6:]
	}
	if strings.TrimSpace(raw) == "" {
		return "Unknown"
	}
	return raw
}

func fallback(value, alt string) string {
	if strings.TrimSpace(value) == "" {
		return alt
	}
	return value
}
