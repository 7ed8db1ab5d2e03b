// Package queue persists pipeline jobs in SQLite and models the job
// lifecycle state machine. Each discovered video gets exactly one active
// job row; the status column drives which workflow stage picks it up next.
package queue
