// Package staging manages per-job scratch directories and their cleanup.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
)

// JobDir returns the scratch directory for a job, creating it if needed.
// Jobs stage downloaded audio, captions, and assembled notes here before
// publication.
func JobDir(stagingRoot string, jobID int64) (string, error) {
	dir := filepath.Join(stagingRoot, fmt.Sprintf("job-%d", jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return dir, nil
}

// RemoveJobDir deletes a job's scratch directory after archival.
func RemoveJobDir(stagingRoot string, jobID int64) error {
	dir := filepath.Join(stagingRoot, fmt.Sprintf("job-%d", jobID))
	return os.RemoveAll(dir)
}
