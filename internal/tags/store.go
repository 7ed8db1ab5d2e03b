// Package tags maintains the learned tag vocabulary.
//
// The vocabulary is a frequency table: every tag the summarizer emits is
// recorded, and the most used entries are fed back into later summarization
// prompts as a biasing hint so tagging converges instead of sprawling.
// Writes are increment-only; entries are never removed by the pipeline.
package tags

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"voxbox/internal/config"
)

// DefaultVocabulary seeds a fresh store with common video content tags.
var DefaultVocabulary = []string{
	"education", "tutorial", "podcast", "interview", "documentary",
	"entertainment", "technology", "science", "business", "health",
	"fitness", "meditation", "music", "cooking", "travel",
	"news", "review", "howto", "motivation", "finance",
}

// FallbackTag is applied when a note ends up with no valid tags.
const FallbackTag = "uncategorized"

var validTag = regexp.MustCompile(`^[a-z0-9_-]+$`)

var reservedTags = map[string]struct{}{
	FallbackTag: {},
	"logs":      {},
	"archive":   {},
	"inbox":     {},
	"outbox":    {},
	"temp":      {},
}

// Normalize lowercases and trims a candidate tag.
func Normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// IsValid reports whether a normalized tag is acceptable: 2 to 30 characters
// of lowercase alphanumerics, hyphen, or underscore, and not a reserved name.
func IsValid(tag string) bool {
	if len(tag) < 2 || len(tag) > 30 {
		return false
	}
	if !validTag.MatchString(tag) {
		return false
	}
	_, reserved := reservedTags[tag]
	return !reserved
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tag_vocabulary (
    name TEXT PRIMARY KEY,
    uses INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// Entry is a vocabulary tag with its usage count.
type Entry struct {
	Name string
	Uses int
}

// Store persists the tag vocabulary in SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes or connects to the vocabulary database under the data
// directory, seeding the default vocabulary on first use.
func Open(cfg *config.Config) (*Store, error) {
	return OpenAt(filepath.Join(cfg.Paths.DataDir, "tags.db"))
}

// OpenAt connects to the vocabulary database at an explicit path.
func OpenAt(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tag db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tag schema: %w", err)
	}

	store := &Store{db: db}
	if err := store.seed(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tag_vocabulary`).Scan(&count); err != nil {
		return fmt.Errorf("count vocabulary: %w", err)
	}
	if count > 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, tag := range DefaultVocabulary {
		if _, err := s.db.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO tag_vocabulary (name, uses, created_at, updated_at) VALUES (?, 0, ?, ?)`,
			tag, now, now,
		); err != nil {
			return fmt.Errorf("seed vocabulary: %w", err)
		}
	}
	return nil
}

// Record normalizes, validates, and counts a use of each provided tag,
// inserting unseen tags. Invalid candidates are dropped and the kept set is
// returned.
func (s *Store) Record(ctx context.Context, candidates []string) ([]string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	kept := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		tag := Normalize(candidate)
		if !IsValid(tag) {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}

		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO tag_vocabulary (name, uses, created_at, updated_at) VALUES (?, 1, ?, ?)
             ON CONFLICT(name) DO UPDATE SET uses = uses + 1, updated_at = excluded.updated_at`,
			tag, now, now,
		)
		if err != nil {
			return kept, fmt.Errorf("record tag %q: %w", tag, err)
		}
		kept = append(kept, tag)
	}
	return kept, nil
}

// TopN returns up to n vocabulary entries ranked by usage, ties broken by
// name, for use as a prompt biasing hint.
func (s *Store) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, uses FROM tag_vocabulary ORDER BY uses DESC, name LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("top tags: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Name, &entry.Uses); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// All returns the full vocabulary sorted by name.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, uses FROM tag_vocabulary ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Name, &entry.Uses); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
