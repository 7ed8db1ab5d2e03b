package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a pipeline job.
type Status string

const (
	StatusDiscovered   Status = "discovered"
	StatusFetching     Status = "fetching"
	StatusTranscribing Status = "transcribing"
	StatusSummarizing  Status = "summarizing"
	StatusWriting      Status = "writing"
	StatusArchived     Status = "archived"
	StatusFailed       Status = "failed"
	StatusInvalid      Status = "invalid"
)

// Mode identifies where a job's input was discovered.
type Mode string

const (
	ModeLocal   Mode = "local"
	ModeDropbox Mode = "dropbox"
)

var allStatuses = []Status{
	StatusDiscovered,
	StatusFetching,
	StatusTranscribing,
	StatusSummarizing,
	StatusWriting,
	StatusArchived,
	StatusFailed,
	StatusInvalid,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusArchived: {},
	StatusFailed:   {},
	StatusInvalid:  {},
}

// Job represents one unit of work derived from a submitted video reference,
// persisted in SQLite. The durable record of pending work is the input file
// itself; rows in non-terminal states are rebuilt from surviving inputs on
// restart.
type Job struct {
	ID              int64
	VideoID         string
	SourceRef       string
	Mode            Mode
	AccountID       string
	InputPath       string
	InputName       string
	Title           string
	Channel         string
	DurationSeconds int
	UploadDate      string
	AudioPath       string
	CaptionPath     string
	CaptionSource   string
	TranscriptJSON  string
	SummaryJSON     string
	OutputPath      string
	Status          Status
	RetryCount      int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsTerminal reports whether the job has reached a terminal state.
func (j Job) IsTerminal() bool {
	return IsTerminal(j.Status)
}

// SetFailed marks the job as failed with the given reason.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
}

// SetInvalid marks the job as invalid (malformed input, non-retryable).
func (j *Job) SetInvalid(message string) {
	j.Status = StatusInvalid
	j.ErrorMessage = message
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Archived   int
	Failed     int
	Invalid    int
}
