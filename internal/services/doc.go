// Package services holds cross-cutting helpers for the external collaborators
// the pipeline drives: a sentinel error taxonomy for retry/terminal
// classification and context annotation helpers for correlating log output
// with jobs and stages.
package services
